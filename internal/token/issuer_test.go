package token

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer(IssuerConfig{
		Secret:    testSecret,
		Issuer:    "authcore",
		Audience:  "authcore-client",
		AccessTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewIssuer err: %v", err)
	}
	return iss
}

func TestGenerateVerify_RoundTrip(t *testing.T) {
	iss := newTestIssuer(t)
	pair, err := iss.GeneratePair("u-1", []string{"read", "write"})
	if err != nil {
		t.Fatalf("GeneratePair err: %v", err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresIn != 3600 {
		t.Fatalf("unexpected pair meta: %+v", pair)
	}

	claims, err := iss.Verify(pair.AccessToken, TypeAccess)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if claims.UserID != "u-1" {
		t.Fatalf("UserID = %q", claims.UserID)
	}
	if len(claims.Permissions) != 2 || claims.Permissions[0] != "read" || claims.Permissions[1] != "write" {
		t.Fatalf("Permissions = %v", claims.Permissions)
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	iss := newTestIssuer(t)
	pair, _ := iss.GeneratePair("u-1", nil)

	parts := strings.Split(pair.AccessToken, ".")
	if len(parts) != 3 {
		t.Fatal("unexpected JWT format")
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := iss.Verify(tampered, TypeAccess); err == nil {
		t.Fatal("tampered token verified")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	iss := newTestIssuer(t)
	pair, _ := iss.GeneratePair("u-1", nil)

	other, _ := NewIssuer(IssuerConfig{
		Secret:   "ffffffffffffffffffffffffffffffff",
		Issuer:   "authcore",
		Audience: "authcore-client",
	})
	if _, err := other.Verify(pair.AccessToken, TypeAccess); err == nil {
		t.Fatal("token verified with wrong secret")
	}
}

func TestVerify_TypeMismatch(t *testing.T) {
	iss := newTestIssuer(t)
	pair, _ := iss.GeneratePair("u-1", nil)

	if _, err := iss.Verify(pair.RefreshToken, TypeAccess); err != ErrWrongType {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
	if _, err := iss.Verify(pair.AccessToken, TypeRefresh); err != ErrWrongType {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	iss := newTestIssuer(t)
	pair, _ := iss.GeneratePair("u-1", nil)

	iss.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := iss.Verify(pair.AccessToken, TypeAccess); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// El refresh (7d) sigue siendo válido.
	if _, err := iss.Verify(pair.RefreshToken, TypeRefresh); err != nil {
		t.Fatalf("refresh should outlive access: %v", err)
	}
}

func TestNewIssuer_RejectsShortSecret(t *testing.T) {
	if _, err := NewIssuer(IssuerConfig{Secret: "short"}); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestRefreshToken_HasNoPermissions(t *testing.T) {
	iss := newTestIssuer(t)
	pair, _ := iss.GeneratePair("u-1", []string{"admin"})
	claims, err := iss.Verify(pair.RefreshToken, TypeRefresh)
	if err != nil {
		t.Fatal(err)
	}
	if len(claims.Permissions) != 0 {
		t.Fatalf("refresh token must not carry permissions: %v", claims.Permissions)
	}
}

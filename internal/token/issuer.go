// Package token emite y verifica los bearer tokens del core.
//
// Los tokens son stateless: la validez depende solo de firma y expiración,
// no hay tabla server-side. La revocación anticipada es responsabilidad del
// Session Manager, que existe justamente porque estos tokens no se pueden
// invalidar antes de su expiry natural.
package token

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Tipos de token. El refresh solo sirve para emitir un nuevo access.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalid = errors.New("token invalid")
	ErrExpired = errors.New("token expired")
	// ErrWrongType: token válido pero del tipo equivocado (refresh donde va access, etc).
	ErrWrongType = errors.New("token type mismatch")
)

// Pair es el resultado de una emisión: access corto + refresh largo.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // segundos del access token
}

// Claims es la vista verificada de un token.
// Nunca incluye password hash ni secretos MFA.
type Claims struct {
	UserID      string
	Permissions []string
	Type        string
	ExpiresAt   time.Time
}

type jwtClaims struct {
	Permissions []string `json:"perms,omitempty"`
	TokenType   string   `json:"typ"`
	jwtv5.RegisteredClaims
}

// Issuer firma con un secreto simétrico (HS256) provisto por configuración.
type Issuer struct {
	secret     []byte
	iss        string
	aud        string
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

type IssuerConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration // default 1h
	RefreshTTL time.Duration // default 7d
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("signing secret too short (need >= 32 bytes, got %d)", len(cfg.Secret))
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		secret:     []byte(cfg.Secret),
		iss:        cfg.Issuer,
		aud:        cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// GeneratePair emite access + refresh para el usuario. El refresh no lleva
// permisos: se resuelven de nuevo al canjearlo.
func (i *Issuer) GeneratePair(userID string, permissions []string) (Pair, error) {
	now := i.now().UTC()

	access, err := i.sign(jwtClaims{
		Permissions: permissions,
		TokenType:   TypeAccess,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.iss,
			Subject:   userID,
			Audience:  jwtv5.ClaimStrings{i.aud},
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(i.accessTTL)),
		},
	})
	if err != nil {
		return Pair{}, err
	}

	refresh, err := i.sign(jwtClaims{
		TokenType: TypeRefresh,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.iss,
			Subject:   userID,
			Audience:  jwtv5.ClaimStrings{i.aud},
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(i.refreshTTL)),
		},
	})
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.accessTTL.Seconds()),
	}, nil
}

func (i *Issuer) sign(claims jwtClaims) (string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	s, err := tk.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify valida firma, expiry, issuer/audience y tipo. Operación pura:
// no toca estado compartido, puede correr concurrente sin locks.
func (i *Issuer) Verify(tokenStr, wantType string) (*Claims, error) {
	var claims jwtClaims
	_, err := jwtv5.ParseWithClaims(tokenStr, &claims,
		func(t *jwtv5.Token) (any, error) { return i.secret, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(i.iss),
		jwtv5.WithAudience(i.aud),
		jwtv5.WithTimeFunc(func() time.Time { return i.now() }),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongType
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return &Claims{
		UserID:      claims.Subject,
		Permissions: claims.Permissions,
		Type:        claims.TokenType,
		ExpiresAt:   exp,
	}, nil
}

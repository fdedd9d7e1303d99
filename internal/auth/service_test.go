package auth

import (
	"context"
	"testing"
	"time"

	"github.com/assessly/authcore/internal/audit"
	cachemem "github.com/assessly/authcore/internal/cache/memory"
	"github.com/assessly/authcore/internal/domain/types"
	"github.com/assessly/authcore/internal/mfa"
	"github.com/assessly/authcore/internal/notify"
	"github.com/assessly/authcore/internal/rate"
	"github.com/assessly/authcore/internal/security/password"
	"github.com/assessly/authcore/internal/security/totp"
	"github.com/assessly/authcore/internal/session"
	storemem "github.com/assessly/authcore/internal/store/memory"
	"github.com/assessly/authcore/internal/token"
)

// Parámetros argon2 bajos para que la suite no tarde.
var testHashParams = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

type nullEmail struct{}

func (nullEmail) Send(to, subject, html, text string) error { return nil }

type nullSMS struct{}

func (nullSMS) Send(ctx context.Context, to, body string) error { return nil }

type testEnv struct {
	svc   *Service
	users *storemem.Store
	login *rate.Lockout
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	c := cachemem.New(time.Minute)
	users := storemem.New()
	issuer, err := token.NewIssuer(token.IssuerConfig{
		Secret:   "0123456789abcdef0123456789abcdef",
		Issuer:   "authcore",
		Audience: "authcore-client",
	})
	if err != nil {
		t.Fatal(err)
	}
	loginLimiter := rate.NewLockout(rate.NewMemoryStore(), rate.Config{
		Threshold: 3, LockFor: 15 * time.Minute,
	})
	mfaLimiter := rate.NewLockout(rate.NewMemoryStore(), rate.Config{
		Threshold: 3, LockFor: 5 * time.Minute,
	})
	mgr := mfa.NewManager(c, users, notify.NewCodes(c, time.Minute), nullEmail{}, nullSMS{}, mfa.Config{})
	svc := NewService(Deps{
		Users:        users,
		Issuer:       issuer,
		Sessions:     session.NewManager(c, session.Config{TTL: time.Hour}),
		MFA:          mgr,
		Audit:        audit.NewSink(nil),
		LoginLimiter: loginLimiter,
		MFALimiter:   mfaLimiter,
	})
	return &testEnv{svc: svc, users: users, login: loginLimiter}
}

func (e *testEnv) seedUser(t *testing.T, username, plain string, enr *types.MFAEnrollment) *types.User {
	t.Helper()
	hash, err := password.Hash(testHashParams, plain)
	if err != nil {
		t.Fatal(err)
	}
	u := &types.User{
		ID:           "u-" + username,
		Username:     username,
		Email:        username + "@example.com",
		Permissions:  []string{"quiz:read"},
		PasswordHash: hash,
		MFA:          enr,
	}
	e.users.Seed(u)
	return u
}

func loginInput(identifier, pass string) LoginInput {
	return LoginInput{Identifier: identifier, Password: pass, IP: "10.0.0.1", UserAgent: "curl/8"}
}

func TestLogin_Success(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "s3cretPass!", nil)

	res, err := e.svc.Login(context.Background(), loginInput("alice", "s3cretPass!"))
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if res.MFARequired {
		t.Fatal("MFARequired for account without MFA")
	}
	if res.Tokens == nil || res.Tokens.AccessToken == "" || res.SessionID == "" {
		t.Fatalf("incomplete result: %+v", res)
	}
	// Last-login quedó registrado.
	u, _ := e.users.GetByID(context.Background(), "u-alice")
	if u.LastLoginAt == nil || u.LastLoginIP != "10.0.0.1" {
		t.Fatalf("last login not recorded: %+v", u)
	}
}

func TestLogin_WrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	_, err1 := e.svc.Login(ctx, loginInput("alice", "wrong"))
	_, err2 := e.svc.Login(ctx, loginInput("nobody", "wrong"))
	if err1 != ErrInvalidCredentials || err2 != ErrInvalidCredentials {
		t.Fatalf("both must be ErrInvalidCredentials: %v / %v", err1, err2)
	}
}

func TestLogin_LockoutBlocksCorrectPassword(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.svc.Login(ctx, loginInput("alice", "wrong")); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	// La ventana está llena: incluso el password correcto rebota.
	if _, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!")); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLogin_AccountKeyLocksAcrossIPs(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		in := loginInput("alice", "wrong")
		in.IP = ip
		if _, err := e.svc.Login(ctx, in); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	in := loginInput("alice", "s3cretPass!")
	in.IP = "10.0.0.99"
	if _, err := e.svc.Login(ctx, in); err != ErrRateLimited {
		t.Fatalf("account key should lock across IPs, got %v", err)
	}
}

func TestLogin_SuccessClearsWindow(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = e.svc.Login(ctx, loginInput("alice", "wrong"))
	}
	if _, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!")); err != nil {
		t.Fatalf("login under threshold: %v", err)
	}
	// La ventana se limpió: dos fallos más no alcanzan el umbral.
	for i := 0; i < 2; i++ {
		_, _ = e.svc.Login(ctx, loginInput("alice", "wrong"))
	}
	if _, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!")); err != nil {
		t.Fatalf("window should have been cleared: %v", err)
	}
}

func TestLogin_ThreatRejected(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// Sobre el identificador solo corren las clases sql y xss; lo demás
	// cae en la validación de formato.
	for _, id := range []string{
		"admin' OR '1'='1",
		"<script>alert(1)</script>",
		"x@example.com' UNION SELECT--",
	} {
		if _, err := e.svc.Login(ctx, loginInput(id, "whatever")); err != ErrThreatDetected {
			t.Fatalf("identifier %q: expected ErrThreatDetected, got %v", id, err)
		}
	}
	for _, id := range []string{"bob; rm -rf /", "../../etc/passwd"} {
		if _, err := e.svc.Login(ctx, loginInput(id, "whatever")); err != ErrInvalidIdentifier {
			t.Fatalf("identifier %q: expected ErrInvalidIdentifier, got %v", id, err)
		}
	}
}

func TestLogin_CommandWordsInEmailAreNotThreats(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// Emails legítimos con palabras de la heurística de comandos (del, cat)
	// tienen que llegar al lookup, no morir como amenaza.
	for _, id := range []string{"del.gado@example.com", "cat.herine@example.com"} {
		if _, err := e.svc.Login(ctx, loginInput(id, "whatever")); err != ErrInvalidCredentials {
			t.Fatalf("identifier %q: expected ErrInvalidCredentials, got %v", id, err)
		}
	}
}

func TestLogin_ThreatHitsCountTowardIPWindow(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	// Tres payloads hostiles desde la misma IP agotan la ventana.
	for i := 0; i < 3; i++ {
		if _, err := e.svc.Login(ctx, loginInput("admin' OR '1'='1", "x")); err != ErrThreatDetected {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if _, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!")); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited after threat hits, got %v", err)
	}
}

func TestLogin_PersistsAccountLockAtThreshold(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.svc.Login(ctx, loginInput("alice", "wrong")); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	u, _ := e.users.GetByID(ctx, "u-alice")
	if u.FailedAttempts != 3 {
		t.Fatalf("FailedAttempts = %d, want 3", u.FailedAttempts)
	}
	if u.LockedUntil == nil || !u.LockedUntil.After(time.Now()) {
		t.Fatalf("LockedUntil not persisted: %v", u.LockedUntil)
	}

	// El lock vive en la cuenta: aunque la ventana volátil se limpie
	// (p. ej. reinicio de la instancia), el password correcto no entra.
	e.login.Clear(loginIPKey("10.0.0.1"))
	e.login.Clear(loginAcctKey("alice"))
	if _, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!")); err != ErrAccountLocked {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLogin_MalformedIdentifier(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for _, id := range []string{"ab", "x y z", "trailing."} {
		if _, err := e.svc.Login(ctx, loginInput(id, "whatever")); err != ErrInvalidIdentifier {
			t.Fatalf("identifier %q: expected ErrInvalidIdentifier, got %v", id, err)
		}
	}
}

func TestLogin_DisabledAndLocked(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	u.Disabled = true
	e.users.Seed(u)
	if _, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!")); err != ErrAccountDisabled {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	u.Disabled = false
	until := time.Now().Add(time.Hour)
	u.LockedUntil = &until
	e.users.Seed(u)
	if _, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!")); err != ErrAccountLocked {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLogin_MFAFlowEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	raw, b32, err := totp.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	e.seedUser(t, "alice", "s3cretPass!", &types.MFAEnrollment{
		Enabled:    true,
		TOTPSecret: b32,
	})
	ctx := context.Background()

	res, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!"))
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if !res.MFARequired || res.ChallengeToken == "" {
		t.Fatalf("expected MFA challenge, got %+v", res)
	}
	if res.Tokens != nil {
		t.Fatal("tokens must not be issued before MFA")
	}

	code := totp.Generate(raw, time.Now().Unix()/totp.Period)
	ver, err := e.svc.VerifyMFA(ctx, MFAVerifyInput{
		ChallengeToken: res.ChallengeToken,
		Method:         "totp",
		Code:           code,
		IP:             "10.0.0.1",
		UserAgent:      "curl/8",
	})
	if err != nil {
		t.Fatalf("VerifyMFA err: %v", err)
	}
	if ver.Tokens == nil || ver.SessionID == "" || ver.UserID != "u-alice" {
		t.Fatalf("incomplete mfa result: %+v", ver)
	}

	// El mismo challenge no se puede consumir dos veces.
	if _, err := e.svc.VerifyMFA(ctx, MFAVerifyInput{
		ChallengeToken: res.ChallengeToken,
		Method:         "totp",
		Code:           code,
		IP:             "10.0.0.1",
		UserAgent:      "curl/8",
	}); err != ErrChallengeInvalid {
		t.Fatalf("expected ErrChallengeInvalid on reuse, got %v", err)
	}
}

func TestVerifyMFA_WrongCode(t *testing.T) {
	e := newTestEnv(t)
	_, b32, _ := totp.GenerateSecret()
	e.seedUser(t, "alice", "s3cretPass!", &types.MFAEnrollment{Enabled: true, TOTPSecret: b32})
	ctx := context.Background()

	res, _ := e.svc.Login(ctx, loginInput("alice", "s3cretPass!"))
	if _, err := e.svc.VerifyMFA(ctx, MFAVerifyInput{
		ChallengeToken: res.ChallengeToken,
		Method:         "totp",
		Code:           "000000",
		IP:             "10.0.0.1",
	}); err != ErrMFACodeInvalid {
		t.Fatalf("expected ErrMFACodeInvalid, got %v", err)
	}
}

func TestVerifyMFA_UnknownMethodAndToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.svc.VerifyMFA(ctx, MFAVerifyInput{
		ChallengeToken: "tok", Method: "carrier_pigeon", Code: "123456", IP: "10.0.0.1",
	}); err != ErrMFAMethodUnknown {
		t.Fatalf("expected ErrMFAMethodUnknown, got %v", err)
	}
	if _, err := e.svc.VerifyMFA(ctx, MFAVerifyInput{
		ChallengeToken: "bogus", Method: "totp", Code: "123456", IP: "10.0.0.1",
	}); err != ErrChallengeInvalid {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}
}

func TestRefresh_RoundTrip(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	res, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!"))
	if err != nil {
		t.Fatal(err)
	}
	ref, err := e.svc.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh err: %v", err)
	}
	if ref.Tokens.AccessToken == "" || ref.UserID != "u-alice" {
		t.Fatalf("incomplete refresh: %+v", ref)
	}
	// Un access token no sirve como refresh.
	if _, err := e.svc.Refresh(ctx, res.Tokens.AccessToken); err != ErrTokenInvalid {
		t.Fatalf("access-as-refresh should fail, got %v", err)
	}
}

func TestLogout_InvalidatesSession(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	res, _ := e.svc.Login(ctx, loginInput("alice", "s3cretPass!"))
	if err := e.svc.Logout(ctx, res.SessionID, "10.0.0.1", "curl/8"); err != nil {
		t.Fatalf("Logout err: %v", err)
	}
	// Idempotente.
	if err := e.svc.Logout(ctx, res.SessionID, "10.0.0.1", "curl/8"); err != nil {
		t.Fatalf("second Logout err: %v", err)
	}
}

func TestTrustedDeviceSkipsMFA(t *testing.T) {
	e := newTestEnv(t)
	e.svc.deps.TrustedDeviceSkip = true
	raw, b32, _ := totp.GenerateSecret()
	e.seedUser(t, "alice", "s3cretPass!", &types.MFAEnrollment{Enabled: true, TOTPSecret: b32})
	ctx := context.Background()

	res, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!"))
	if err != nil || !res.MFARequired {
		t.Fatalf("first login should require MFA: res=%+v err=%v", res, err)
	}
	code := totp.Generate(raw, time.Now().Unix()/totp.Period)
	if _, err := e.svc.VerifyMFA(ctx, MFAVerifyInput{
		ChallengeToken: res.ChallengeToken,
		Method:         "totp",
		Code:           code,
		IP:             "10.0.0.1",
		UserAgent:      "curl/8",
		TrustDevice:    true,
	}); err != nil {
		t.Fatalf("VerifyMFA: %v", err)
	}

	// Segundo login desde el mismo (IP, UA): el device es confiable.
	res2, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!"))
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if res2.MFARequired {
		t.Fatal("trusted device should skip MFA")
	}
}

type chanEmail struct{ sent chan string }

func (c chanEmail) Send(to, subject, html, text string) error {
	c.sent <- to
	return nil
}

func TestLogin_NewIPSendsSecurityAlert(t *testing.T) {
	e := newTestEnv(t)
	alerts := chanEmail{sent: make(chan string, 1)}
	e.svc.deps.Alerts = alerts
	u := e.seedUser(t, "alice", "s3cretPass!", nil)
	ctx := context.Background()

	// Primer login: no hay IP anterior, no hay aviso.
	if _, err := e.svc.Login(ctx, loginInput("alice", "s3cretPass!")); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	select {
	case to := <-alerts.sent:
		t.Fatalf("alert sent on first login: %q", to)
	case <-time.After(50 * time.Millisecond):
	}

	in := loginInput("alice", "s3cretPass!")
	in.IP = "203.0.113.9"
	if _, err := e.svc.Login(ctx, in); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	select {
	case to := <-alerts.sent:
		if to != u.Email {
			t.Fatalf("alert to %q, want %q", to, u.Email)
		}
	case <-time.After(time.Second):
		t.Fatal("no alert after login from new IP")
	}
}

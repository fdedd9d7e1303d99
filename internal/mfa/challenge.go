// Package mfa implementa el challenge de segundo factor.
//
// Un challenge es el estado intermedio entre "password correcto" y "sesión
// emitida": referencia al usuario, métodos disponibles y contador de
// intentos, con vigencia corta. El token del challenge es opaco y es lo
// único que el cliente ve; nunca lleva datos del usuario.
package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/assessly/authcore/internal/cache"
	"github.com/assessly/authcore/internal/domain/repository"
	"github.com/assessly/authcore/internal/domain/types"
	"github.com/assessly/authcore/internal/notify"
	"github.com/assessly/authcore/internal/observability/logger"
	sectoken "github.com/assessly/authcore/internal/security/token"
	"github.com/assessly/authcore/internal/security/totp"
)

type Method string

const (
	MethodTOTP   Method = "totp"
	MethodSMS    Method = "sms"
	MethodEmail  Method = "email"
	MethodBackup Method = "backup_code"
)

var (
	// ErrChallengeNotFound cubre token desconocido, ya consumido o inválido.
	ErrChallengeNotFound = errors.New("mfa challenge not found")
	ErrChallengeExpired  = errors.New("mfa challenge expired")
	// ErrTooManyAttempts: el challenge agotó sus intentos. Sigue existiendo
	// hasta su TTL pero ya no acepta códigos, ni siquiera correctos.
	ErrTooManyAttempts   = errors.New("mfa challenge attempt limit reached")
	ErrCodeInvalid       = errors.New("mfa code invalid")
	ErrMethodUnavailable = errors.New("mfa method not available for account")
)

// Challenge es el estado serializado en cache, keyed por token.
type Challenge struct {
	Token     string    `json:"-"`
	UserID    string    `json:"uid"`
	Methods   []Method  `json:"methods"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Result es el resultado de una verificación exitosa.
type Result struct {
	UserID     string
	MethodUsed Method
	// BackupCodesRemaining solo aplica a MethodBackup.
	BackupCodesRemaining int
	// NewBackupCodes (en claro) se devuelve una única vez cuando el set
	// se regeneró por quedar por debajo del umbral.
	NewBackupCodes []string
}

type Config struct {
	ChallengeTTL time.Duration // default 5m
	MaxAttempts  int           // default 3
	TOTPWindow   int           // pasos de 30s a cada lado, default 2
	BackupSet    int           // default 10
	BackupLow    int           // regenerar cuando quedan <= este valor, default 2
}

type Manager struct {
	cache cache.Cache
	users repository.UserStore
	codes *notify.Codes
	email notify.EmailSender
	sms   notify.SMSSender
	cfg   Config

	now func() time.Time
}

func NewManager(c cache.Cache, users repository.UserStore, codes *notify.Codes, email notify.EmailSender, sms notify.SMSSender, cfg Config) *Manager {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TOTPWindow <= 0 {
		cfg.TOTPWindow = 2
	}
	if cfg.BackupSet <= 0 {
		cfg.BackupSet = 10
	}
	if cfg.BackupLow <= 0 {
		cfg.BackupLow = 2
	}
	return &Manager{
		cache: c,
		users: users,
		codes: codes,
		email: email,
		sms:   sms,
		cfg:   cfg,
		now:   time.Now,
	}
}

func challengeKey(token string) string { return "mfa:challenge:" + token }
func userIndexKey(userID string) string { return "mfa:user:" + userID }

// Begin crea un challenge para el usuario e invalida el anterior si había.
// Para cuentas con SMS o email enrolado despacha el código de una vez.
func (m *Manager) Begin(ctx context.Context, user *types.User) (*Challenge, error) {
	if user.MFA == nil || !user.MFA.Enabled {
		return nil, ErrMethodUnavailable
	}
	methods := availableMethods(user.MFA)
	if len(methods) == 0 {
		return nil, ErrMethodUnavailable
	}

	// Un solo challenge vivo por usuario: el login nuevo pisa al viejo.
	if old, ok := m.cache.GetDel(userIndexKey(user.ID)); ok {
		m.cache.Delete(challengeKey(string(old)))
	}

	tok, err := sectoken.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	ch := &Challenge{
		Token:     tok,
		UserID:    user.ID,
		Methods:   methods,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.ChallengeTTL),
	}
	if err := m.put(ch); err != nil {
		return nil, err
	}
	m.cache.Set(userIndexKey(user.ID), []byte(tok), m.cfg.ChallengeTTL)

	m.dispatchCodes(ctx, user, methods)

	logger.From(ctx).Info("mfa challenge created",
		logger.Layer("mfa"),
		logger.UserID(user.ID),
		logger.Int("methods", len(methods)),
	)
	return ch, nil
}

func (m *Manager) dispatchCodes(ctx context.Context, user *types.User, methods []Method) {
	log := logger.From(ctx).With(logger.Layer("mfa"), logger.UserID(user.ID))
	for _, meth := range methods {
		switch meth {
		case MethodSMS:
			code, err := m.codes.Issue(user.ID, string(MethodSMS))
			if err != nil {
				log.Error("issue sms code", logger.Err(err))
				continue
			}
			if err := m.sms.Send(ctx, user.MFA.PhoneNumber,
				fmt.Sprintf("Your verification code is %s", code)); err != nil {
				log.Error("send sms code", logger.Err(err))
			}
		case MethodEmail:
			code, err := m.codes.Issue(user.ID, string(MethodEmail))
			if err != nil {
				log.Error("issue email code", logger.Err(err))
				continue
			}
			if err := m.email.Send(user.MFA.CodeEmail, "Your verification code",
				"", fmt.Sprintf("Your verification code is %s. It expires shortly.", code)); err != nil {
				log.Error("send email code", logger.Err(err))
			}
		}
	}
}

// Get devuelve el challenge sin consumirlo (para re-mostrar métodos).
func (m *Manager) Get(ctx context.Context, token string) (*Challenge, error) {
	ch, err := m.load(token)
	if err != nil {
		return nil, err
	}
	if m.now().After(ch.ExpiresAt) {
		m.drop(ch)
		return nil, ErrChallengeExpired
	}
	return ch, nil
}

// Verify valida el código contra el método elegido.
//
// En éxito el challenge se consume atómicamente (GetDel): de dos
// submissions concurrentes del mismo token, exactamente una gana.
// Un fallo solo incrementa el contador: el challenge no se destruye,
// muere por TTL o por éxito. El lockout agresivo es responsabilidad
// del rate limiter de MFA, no de este estado.
func (m *Manager) Verify(ctx context.Context, token string, method Method, code string) (*Result, error) {
	ch, err := m.load(token)
	if err != nil {
		return nil, err
	}
	if m.now().After(ch.ExpiresAt) {
		m.drop(ch)
		return nil, ErrChallengeExpired
	}
	if ch.Attempts >= m.cfg.MaxAttempts {
		return nil, ErrTooManyAttempts
	}
	if !hasMethod(ch.Methods, method) {
		return nil, ErrMethodUnavailable
	}

	user, err := m.users.GetByID(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}
	if user.MFA == nil {
		return nil, ErrMethodUnavailable
	}

	res, verr := m.verifyMethod(ctx, user, method, code)
	if verr != nil {
		return nil, m.recordFailure(ctx, ch, verr)
	}

	// Consumo atómico: si otro Verify concurrente ya ganó, esto falla.
	if _, ok := m.cache.GetDel(challengeKey(ch.Token)); !ok {
		return nil, ErrChallengeNotFound
	}
	m.cache.Delete(userIndexKey(ch.UserID))

	res.UserID = ch.UserID
	res.MethodUsed = method
	return res, nil
}

func (m *Manager) verifyMethod(ctx context.Context, user *types.User, method Method, code string) (*Result, error) {
	switch method {
	case MethodTOTP:
		return m.verifyTOTP(ctx, user, code)
	case MethodSMS, MethodEmail:
		if !m.codes.Consume(user.ID, string(method), code) {
			return nil, ErrCodeInvalid
		}
		return &Result{}, nil
	case MethodBackup:
		return m.verifyBackup(ctx, user, code)
	default:
		return nil, ErrMethodUnavailable
	}
}

func (m *Manager) verifyTOTP(ctx context.Context, user *types.User, code string) (*Result, error) {
	secret, err := totp.DecodeSecret(user.MFA.TOTPSecret)
	if err != nil {
		return nil, ErrMethodUnavailable
	}
	ok, counter := totp.Verify(secret, code, m.now(), m.cfg.TOTPWindow, user.MFA.TOTPLastCounter)
	if !ok {
		return nil, ErrCodeInvalid
	}
	// Persistir el contador aceptado corta el replay del mismo código.
	if err := m.users.SetTOTPLastCounter(ctx, user.ID, counter); err != nil {
		logger.From(ctx).Error("persist totp counter",
			logger.Layer("mfa"), logger.UserID(user.ID), logger.Err(err))
	}
	return &Result{}, nil
}

func (m *Manager) verifyBackup(ctx context.Context, user *types.User, code string) (*Result, error) {
	hash := sectoken.SHA256Base64URL(normalizeBackupCode(code))
	remaining, ok, err := m.users.ConsumeBackupCode(ctx, user.ID, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeInvalid
	}

	res := &Result{BackupCodesRemaining: remaining}
	if remaining <= m.cfg.BackupLow {
		plain, hashes, err := GenerateBackupCodes(m.cfg.BackupSet)
		if err != nil {
			logger.From(ctx).Error("regenerate backup codes",
				logger.Layer("mfa"), logger.UserID(user.ID), logger.Err(err))
			return res, nil
		}
		if err := m.users.SetBackupCodes(ctx, user.ID, hashes); err != nil {
			logger.From(ctx).Error("store backup codes",
				logger.Layer("mfa"), logger.UserID(user.ID), logger.Err(err))
			return res, nil
		}
		res.NewBackupCodes = plain
		res.BackupCodesRemaining = len(plain)
		m.notifyBackupReset(ctx, user)
	}
	return res, nil
}

func (m *Manager) notifyBackupReset(ctx context.Context, user *types.User) {
	to := user.Email
	if user.MFA.CodeEmail != "" {
		to = user.MFA.CodeEmail
	}
	if to == "" {
		return
	}
	if err := m.email.Send(to, "Backup codes regenerated", "",
		"Your backup codes were running low and a new set was generated. "+
			"Previous codes no longer work. If this wasn't you, contact support."); err != nil {
		logger.From(ctx).Warn("backup reset notification failed",
			logger.Layer("mfa"), logger.UserID(user.ID), logger.Err(err))
	}
}

func (m *Manager) recordFailure(ctx context.Context, ch *Challenge, verr error) error {
	ch.Attempts++
	if err := m.put(ch); err != nil {
		return err
	}
	if ch.Attempts >= m.cfg.MaxAttempts {
		logger.From(ctx).Warn("mfa challenge attempt limit reached",
			logger.Layer("mfa"), logger.UserID(ch.UserID), logger.Int("attempts", ch.Attempts))
		return ErrTooManyAttempts
	}
	return verr
}

func (m *Manager) load(token string) (*Challenge, error) {
	raw, ok := m.cache.Get(challengeKey(token))
	if !ok {
		return nil, ErrChallengeNotFound
	}
	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		m.cache.Delete(challengeKey(token))
		return nil, ErrChallengeNotFound
	}
	ch.Token = token
	return &ch, nil
}

func (m *Manager) put(ch *Challenge) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	ttl := ch.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	m.cache.Set(challengeKey(ch.Token), raw, ttl)
	return nil
}

func (m *Manager) drop(ch *Challenge) {
	m.cache.Delete(challengeKey(ch.Token))
	m.cache.Delete(userIndexKey(ch.UserID))
}

func availableMethods(enr *types.MFAEnrollment) []Method {
	var out []Method
	if enr.TOTPSecret != "" {
		out = append(out, MethodTOTP)
	}
	if enr.PhoneNumber != "" {
		out = append(out, MethodSMS)
	}
	if enr.CodeEmail != "" {
		out = append(out, MethodEmail)
	}
	if len(enr.BackupCodeHashes) > 0 {
		out = append(out, MethodBackup)
	}
	return out
}

func hasMethod(ms []Method, m Method) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}

// ParseMethod valida el método que viene del request.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodTOTP, MethodSMS, MethodEmail, MethodBackup:
		return Method(s), true
	default:
		return "", false
	}
}

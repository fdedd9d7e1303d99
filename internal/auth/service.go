// Package auth orquesta los flujos de autenticación: login con password,
// verificación de segundo factor, refresh y logout.
//
// La regla transversal es no filtrar información: usuario inexistente y
// password incorrecto responden igual, con el mismo perfil de timing.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/assessly/authcore/internal/audit"
	"github.com/assessly/authcore/internal/domain/repository"
	"github.com/assessly/authcore/internal/domain/types"
	"github.com/assessly/authcore/internal/metrics"
	"github.com/assessly/authcore/internal/mfa"
	"github.com/assessly/authcore/internal/notify"
	"github.com/assessly/authcore/internal/observability/logger"
	"github.com/assessly/authcore/internal/rate"
	"github.com/assessly/authcore/internal/security/password"
	"github.com/assessly/authcore/internal/security/threat"
	"github.com/assessly/authcore/internal/session"
	"github.com/assessly/authcore/internal/token"
	"github.com/assessly/authcore/internal/util"
	"github.com/assessly/authcore/internal/validation"
)

// Deps contiene las dependencias del servicio de autenticación.
type Deps struct {
	Users        repository.UserStore
	Issuer       *token.Issuer
	Sessions     *session.Manager
	MFA          *mfa.Manager
	Audit        *audit.Sink
	LoginLimiter *rate.Lockout
	MFALimiter   *rate.Lockout

	// TrustedDeviceSkip permite saltear el challenge MFA cuando
	// (IP, UserAgent) ya fue registrado como dispositivo confiable.
	TrustedDeviceSkip bool

	// Alerts, si está presente, manda un mail de aviso cuando un login
	// exitoso llega desde una IP distinta a la del login anterior.
	Alerts notify.EmailSender
}

type Service struct {
	deps Deps
	now  func() time.Time
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps, now: time.Now}
}

// keys de rate limiting: IP y cuenta se trackean por separado y ambas
// tienen que pasar. El atacante distribuido golpea la clave de cuenta,
// el atacante de spray golpea la de IP.
func loginIPKey(ip string) string           { return "login:ip:" + ip }
func loginAcctKey(identifier string) string { return "login:acct:" + identifier }
func mfaUserKey(userID string) string       { return "mfa:user:" + userID }

// Login ejecuta el flujo completo de password. Ver LoginResult para las
// dos formas de éxito (tokens directos o challenge MFA).
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	start := s.now()
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Op("auth.Login"),
		logger.ClientIP(in.IP),
	)

	in.Identifier = strings.ToLower(strings.TrimSpace(in.Identifier))
	// El user-agent es texto libre controlado por el cliente y termina en
	// logs y sesiones: se normaliza siempre.
	in.UserAgent = threat.Sanitize(in.UserAgent)
	if in.Identifier == "" || in.Password == "" {
		return nil, ErrMissingFields
	}

	// La detección corre sobre el input crudo, antes de cualquier
	// normalización. Input malicioso se rechaza entero: no se intenta
	// "limpiar" un payload de inyección. Solo las clases sql y xss: las
	// heurísticas de command/path matchean emails legítimos (del., cat.).
	if classes := threat.Detect(in.Identifier, threat.SQL, threat.XSS); len(classes) > 0 {
		s.deps.LoginLimiter.RecordFailure(loginIPKey(in.IP))
		s.deps.Audit.Event(ctx, audit.ThreatDetected, audit.SubjectUnknown, map[string]any{
			"classes": classes,
			"ip":      in.IP,
		})
		metrics.LoginAttempts.WithLabelValues("threat").Inc()
		log.Warn("threat detected in login input", logger.ThreatClass(string(classes[0])))
		return nil, ErrThreatDetected
	}

	if !validation.ValidIdentifier(in.Identifier) {
		return nil, ErrInvalidIdentifier
	}

	// Ambas claves se chequean SIEMPRE (sin short-circuit) para que las
	// dos ventanas avancen parejas.
	ipOK := s.deps.LoginLimiter.Allow(loginIPKey(in.IP))
	acctOK := s.deps.LoginLimiter.Allow(loginAcctKey(in.Identifier))
	if !ipOK || !acctOK {
		s.deps.Audit.Event(ctx, audit.LoginRateLimited, audit.SubjectUnknown, map[string]any{
			"identifier": util.MaskEmail(in.Identifier),
			"ip":         in.IP,
		})
		metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}

	user, err := s.deps.Users.GetByIdentifier(ctx, in.Identifier)
	if err != nil {
		// Verificación dummy: usuario inexistente cuesta lo mismo que un
		// password incorrecto. Sin esto el timing delata qué cuentas existen.
		password.DummyVerify(in.Password)
		s.recordLoginFailure(ctx, in, "", "user_not_found")
		return nil, ErrInvalidCredentials
	}
	log = log.With(logger.UserID(user.ID))

	if user.Disabled {
		s.deps.Audit.Event(ctx, audit.LoginBlocked, user.ID, map[string]any{
			"reason": "disabled", "ip": in.IP,
		})
		metrics.LoginAttempts.WithLabelValues("blocked").Inc()
		return nil, ErrAccountDisabled
	}
	if user.LockedUntil != nil && s.now().Before(*user.LockedUntil) {
		s.deps.Audit.Event(ctx, audit.LoginBlocked, user.ID, map[string]any{
			"reason": "locked", "ip": in.IP, "locked_until": *user.LockedUntil,
		})
		metrics.LoginAttempts.WithLabelValues("blocked").Inc()
		return nil, ErrAccountLocked
	}

	if !password.Verify(in.Password, user.PasswordHash) {
		s.recordLoginFailure(ctx, in, user.ID, "bad_password")
		return nil, ErrInvalidCredentials
	}

	// Password correcto: las ventanas de fallos se limpian.
	s.deps.LoginLimiter.Clear(loginIPKey(in.IP))
	s.deps.LoginLimiter.Clear(loginAcctKey(in.Identifier))
	if err := s.deps.Users.ClearFailedLogins(ctx, user.ID); err != nil {
		log.Warn("clear failed logins", logger.Err(err))
	}

	if user.RequiresMFA() && !s.deviceTrusted(ctx, user, in.IP, in.UserAgent) {
		ch, err := s.deps.MFA.Begin(ctx, user)
		if err != nil {
			log.Error("begin mfa challenge", logger.Err(err))
			metrics.LoginAttempts.WithLabelValues("error").Inc()
			return nil, ErrInternal
		}
		s.deps.Audit.Event(ctx, audit.MFARequired, user.ID, map[string]any{
			"ip": in.IP, "methods": ch.Methods,
		})
		metrics.LoginAttempts.WithLabelValues("mfa_required").Inc()
		metrics.LoginDuration.Observe(float64(s.now().Sub(start).Milliseconds()))
		return &LoginResult{
			MFARequired:    true,
			ChallengeToken: ch.Token,
			Methods:        ch.Methods,
		}, nil
	}

	res, err := s.finalizeLogin(ctx, user, in.IP, in.UserAgent)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	metrics.LoginDuration.Observe(float64(s.now().Sub(start).Milliseconds()))
	log.Info("login completed")
	return res, nil
}

func (s *Service) deviceTrusted(ctx context.Context, user *types.User, ip, ua string) bool {
	if !s.deps.TrustedDeviceSkip {
		return false
	}
	ok, err := s.deps.Users.HasTrustedDevice(ctx, user.ID, ip, ua)
	if err != nil {
		logger.From(ctx).Warn("trusted device lookup", logger.UserID(user.ID), logger.Err(err))
		return false
	}
	if ok {
		s.deps.Audit.Event(ctx, audit.TrustedDevice, user.ID, map[string]any{
			"ip": ip, "skip": true,
		})
	}
	return ok
}

func (s *Service) recordLoginFailure(ctx context.Context, in LoginInput, userID, reason string) {
	s.deps.LoginLimiter.RecordFailure(loginIPKey(in.IP))
	s.deps.LoginLimiter.RecordFailure(loginAcctKey(in.Identifier))

	subject := userID
	if subject == "" {
		subject = audit.SubjectUnknown
	} else if n, err := s.deps.Users.RecordFailedLogin(ctx, userID); err != nil {
		logger.From(ctx).Warn("record failed login", logger.UserID(userID), logger.Err(err))
	} else if n >= s.deps.LoginLimiter.Threshold() {
		// El contador persistido cruzó el umbral: el lock queda en la
		// cuenta misma, no solo en la ventana volátil del limiter.
		until := s.now().Add(s.deps.LoginLimiter.LockFor())
		if err := s.deps.Users.SetLockedUntil(ctx, userID, until); err != nil {
			logger.From(ctx).Warn("set account lock", logger.UserID(userID), logger.Err(err))
		} else {
			s.deps.Audit.Event(ctx, audit.AccountLocked, userID, map[string]any{
				"ip": in.IP, "locked_until": until, "failed_attempts": n,
			})
		}
	}

	s.deps.Audit.Event(ctx, audit.LoginFailed, subject, map[string]any{
		"identifier": util.MaskEmail(in.Identifier),
		"ip":         in.IP,
		"reason":     reason,
	})
	metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
}

// finalizeLogin emite tokens + sesión y actualiza el last-login. Es el
// punto común entre login sin MFA y MFA verificado.
func (s *Service) finalizeLogin(ctx context.Context, user *types.User, ip, ua string) (*LoginResult, error) {
	pair, err := s.deps.Issuer.GeneratePair(user.ID, user.Permissions)
	if err != nil {
		logger.From(ctx).Error("issue token pair", logger.UserID(user.ID), logger.Err(err))
		return nil, ErrInternal
	}
	sess, err := s.deps.Sessions.Create(ctx, user.ID, user.Permissions, ip, ua)
	if err != nil {
		logger.From(ctx).Error("create session", logger.UserID(user.ID), logger.Err(err))
		return nil, ErrInternal
	}
	if err := s.deps.Users.UpdateLastLogin(ctx, user.ID, ip, ua); err != nil {
		logger.From(ctx).Warn("update last login", logger.UserID(user.ID), logger.Err(err))
	}

	s.deps.Audit.Event(ctx, audit.LoginSuccess, user.ID, map[string]any{
		"ip": ip, "session_id": sess.ID,
	})
	s.deps.Audit.Event(ctx, audit.SessionCreated, user.ID, map[string]any{
		"session_id": sess.ID,
	})
	s.maybeSendLoginAlert(ctx, user, ip)

	return &LoginResult{
		Tokens:    &pair,
		SessionID: sess.ID,
		UserID:    user.ID,
	}, nil
}

// maybeSendLoginAlert avisa por mail cuando el login llega desde una IP
// distinta a la del anterior. Best-effort: el envío corre en background y
// un fallo no afecta el login.
func (s *Service) maybeSendLoginAlert(ctx context.Context, user *types.User, ip string) {
	if s.deps.Alerts == nil || user.Email == "" {
		return
	}
	if user.LastLoginIP == "" || user.LastLoginIP == ip {
		return
	}
	log := logger.From(ctx)
	subject := "Nuevo inicio de sesión desde un dispositivo desconocido"
	text := "Se inició sesión en tu cuenta desde la IP " + ip + ".\n" +
		"Si no fuiste vos, cambiá tu contraseña ahora."
	html := "<p>Se inició sesión en tu cuenta desde la IP <b>" + ip + "</b>.</p>" +
		"<p>Si no fuiste vos, cambiá tu contraseña ahora.</p>"
	go func() {
		if err := s.deps.Alerts.Send(user.Email, subject, html, text); err != nil {
			log.Warn("send login alert", logger.UserID(user.ID), logger.Err(err))
		}
	}()
	s.deps.Audit.Event(ctx, audit.SecurityAlert, user.ID, map[string]any{
		"ip": ip, "previous_ip": user.LastLoginIP,
	})
}

// TrustDevice registra (IP, UserAgent) como origen confiable de la cuenta.
func (s *Service) trustDevice(ctx context.Context, userID, ip, ua string) {
	dev := types.TrustedDevice{
		ID:        uuid.NewString(),
		UserID:    userID,
		IP:        ip,
		UserAgent: ua,
		CreatedAt: s.now().UTC(),
	}
	if err := s.deps.Users.AddTrustedDevice(ctx, dev); err != nil {
		logger.From(ctx).Warn("add trusted device", logger.UserID(userID), logger.Err(err))
		return
	}
	s.deps.Audit.Event(ctx, audit.TrustedDevice, userID, map[string]any{
		"ip": ip, "device_id": dev.ID,
	})
}

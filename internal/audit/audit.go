// Package audit emite eventos de seguridad append-only.
//
// Cada transición del core (login, lockout, MFA, sesión) emite exactamente un
// evento, éxitos incluidos. El sink nunca bloquea ni propaga fallos al caller:
// un audit que falla se loguea localmente y la operación continúa.
package audit

import (
	"context"
	"time"

	"github.com/assessly/authcore/internal/observability/logger"
	"go.uber.org/zap"
)

// Kinds de evento emitidos por el core.
const (
	LoginSuccess     = "LOGIN_SUCCESS"
	LoginFailed      = "LOGIN_FAILED"
	LoginRateLimited = "LOGIN_RATE_LIMITED"
	LoginBlocked     = "LOGIN_BLOCKED"
	AccountLocked    = "ACCOUNT_LOCKED"
	ThreatDetected   = "THREAT_DETECTED"
	MFARequired      = "MFA_REQUIRED"
	MFASuccess       = "MFA_SUCCESS"
	MFAFailed        = "MFA_FAILED"
	MFAInvalidToken  = "MFA_INVALID_TOKEN"
	MFARateLimited   = "MFA_RATE_LIMITED"
	BackupCodesReset = "BACKUP_CODES_REGENERATED"
	TrustedDevice    = "TRUSTED_DEVICE_ADDED"
	SecurityAlert    = "SECURITY_ALERT_SENT"
	SessionCreated   = "SESSION_CREATED"
	SessionRevoked   = "SESSION_REVOKED"
	TokenRefreshed   = "TOKEN_REFRESHED"
	InternalError    = "INTERNAL_ERROR"
)

// Subjects reservados cuando todavía no hay un sujeto autenticado.
const (
	SubjectUnknown = "unknown"
	SubjectSystem  = "system"
)

// Sink escribe eventos de auditoría estructurados.
type Sink struct {
	log *zap.Logger
}

// NewSink crea un sink respaldado por el logger dado (nil = singleton).
func NewSink(l *zap.Logger) *Sink {
	if l == nil {
		l = logger.Named("audit")
	}
	return &Sink{log: l}
}

// Event emite un evento. Fire-and-forget: jamás retorna error ni panickea
// hacia el caller, aunque el sink subyacente falle.
func (s *Sink) Event(ctx context.Context, kind, subjectID string, attrs map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			logger.From(ctx).Warn("audit sink failure swallowed", logger.Any("panic", r))
		}
	}()

	if subjectID == "" {
		subjectID = SubjectUnknown
	}
	fields := make([]zap.Field, 0, len(attrs)+3)
	fields = append(fields,
		zap.String("event", kind),
		zap.String("subject_id", subjectID),
		zap.Time("ts", time.Now().UTC()),
	)
	for k, v := range attrs {
		fields = append(fields, zap.Any(k, v))
	}
	s.log.Info("audit", fields...)
}

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/assessly/authcore/internal/audit"
	"github.com/assessly/authcore/internal/metrics"
	"github.com/assessly/authcore/internal/mfa"
	"github.com/assessly/authcore/internal/observability/logger"
	"github.com/assessly/authcore/internal/security/threat"
	"github.com/assessly/authcore/internal/util"
)

func mfaIPKey(ip string) string { return "mfa:ip:" + ip }

// VerifyMFA completa un login suspendido en challenge. El contrato con el
// caller es deliberadamente opaco: token desconocido, expirado o consumido
// responden igual (ErrChallengeInvalid).
func (s *Service) VerifyMFA(ctx context.Context, in MFAVerifyInput) (*MFAVerifyResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Op("auth.VerifyMFA"),
		logger.ClientIP(in.IP),
	)

	in.Code = strings.TrimSpace(in.Code)
	in.UserAgent = threat.Sanitize(in.UserAgent)
	if in.ChallengeToken == "" || in.Method == "" || in.Code == "" {
		return nil, ErrMissingFields
	}
	method, ok := mfa.ParseMethod(in.Method)
	if !ok {
		return nil, ErrMFAMethodUnknown
	}
	log = log.With(logger.MFAMethod(string(method)))

	if !s.deps.MFALimiter.Allow(mfaIPKey(in.IP)) {
		s.deps.Audit.Event(ctx, audit.MFARateLimited, audit.SubjectUnknown, map[string]any{"ip": in.IP})
		metrics.MFAVerifications.WithLabelValues(string(method), "rate_limited").Inc()
		return nil, ErrRateLimited
	}

	ch, err := s.deps.MFA.Get(ctx, in.ChallengeToken)
	if err != nil {
		s.deps.MFALimiter.RecordFailure(mfaIPKey(in.IP))
		s.deps.Audit.Event(ctx, audit.MFAInvalidToken, audit.SubjectUnknown, map[string]any{"ip": in.IP})
		metrics.MFAVerifications.WithLabelValues(string(method), "invalid_token").Inc()
		return nil, ErrChallengeInvalid
	}
	log = log.With(logger.UserID(ch.UserID))

	if !s.deps.MFALimiter.Allow(mfaUserKey(ch.UserID)) {
		s.deps.Audit.Event(ctx, audit.MFARateLimited, ch.UserID, map[string]any{"ip": in.IP})
		metrics.MFAVerifications.WithLabelValues(string(method), "rate_limited").Inc()
		return nil, ErrRateLimited
	}

	res, err := s.deps.MFA.Verify(ctx, in.ChallengeToken, method, in.Code)
	if err != nil {
		return nil, s.mapMFAFailure(ctx, in, method, ch.UserID, err)
	}

	s.deps.MFALimiter.Clear(mfaIPKey(in.IP))
	s.deps.MFALimiter.Clear(mfaUserKey(ch.UserID))

	user, err := s.deps.Users.GetByID(ctx, res.UserID)
	if err != nil {
		log.Error("load user after mfa", logger.Err(err))
		metrics.MFAVerifications.WithLabelValues(string(method), "error").Inc()
		return nil, ErrInternal
	}

	login, err := s.finalizeLogin(ctx, user, in.IP, in.UserAgent)
	if err != nil {
		metrics.MFAVerifications.WithLabelValues(string(method), "error").Inc()
		return nil, err
	}

	s.deps.Audit.Event(ctx, audit.MFASuccess, user.ID, map[string]any{
		"ip": in.IP, "method": method,
	})
	if len(res.NewBackupCodes) > 0 {
		s.deps.Audit.Event(ctx, audit.BackupCodesReset, user.ID, map[string]any{
			"count": len(res.NewBackupCodes),
		})
	}
	if in.TrustDevice {
		s.trustDevice(ctx, user.ID, in.IP, in.UserAgent)
	}
	metrics.MFAVerifications.WithLabelValues(string(method), "success").Inc()
	log.Info("mfa verification completed")

	return &MFAVerifyResult{
		Tokens:         login.Tokens,
		SessionID:      login.SessionID,
		UserID:         login.UserID,
		NewBackupCodes: res.NewBackupCodes,
	}, nil
}

func (s *Service) mapMFAFailure(ctx context.Context, in MFAVerifyInput, method mfa.Method, userID string, err error) error {
	switch {
	case errors.Is(err, mfa.ErrCodeInvalid):
		s.deps.MFALimiter.RecordFailure(mfaIPKey(in.IP))
		s.deps.MFALimiter.RecordFailure(mfaUserKey(userID))
		s.deps.Audit.Event(ctx, audit.MFAFailed, userID, map[string]any{
			"ip":     in.IP,
			"method": method,
			"code": util.MaskCode(in.Code),
		})
		metrics.MFAVerifications.WithLabelValues(string(method), "invalid_code").Inc()
		return ErrMFACodeInvalid

	case errors.Is(err, mfa.ErrTooManyAttempts):
		s.deps.MFALimiter.RecordFailure(mfaIPKey(in.IP))
		s.deps.MFALimiter.RecordFailure(mfaUserKey(userID))
		s.deps.Audit.Event(ctx, audit.MFAFailed, userID, map[string]any{
			"ip": in.IP, "method": method, "reason": "attempt_limit",
		})
		metrics.MFAVerifications.WithLabelValues(string(method), "invalid_code").Inc()
		return ErrMFATooManyAttempts

	case errors.Is(err, mfa.ErrChallengeNotFound),
		errors.Is(err, mfa.ErrChallengeExpired):
		s.deps.Audit.Event(ctx, audit.MFAInvalidToken, userID, map[string]any{"ip": in.IP})
		metrics.MFAVerifications.WithLabelValues(string(method), "invalid_token").Inc()
		return ErrChallengeInvalid

	case errors.Is(err, mfa.ErrMethodUnavailable):
		metrics.MFAVerifications.WithLabelValues(string(method), "invalid_code").Inc()
		return ErrMFAMethodUnknown

	default:
		logger.From(ctx).Error("mfa verify", logger.UserID(userID), logger.Err(err))
		metrics.MFAVerifications.WithLabelValues(string(method), "error").Inc()
		return ErrInternal
	}
}

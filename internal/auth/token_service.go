package auth

import (
	"context"

	"github.com/assessly/authcore/internal/audit"
	"github.com/assessly/authcore/internal/observability/logger"
	"github.com/assessly/authcore/internal/security/threat"
	"github.com/assessly/authcore/internal/token"
)

// Refresh canjea un refresh token por un pair nuevo. Los permisos se
// resuelven de nuevo contra el store: un cambio de rol aplica acá, no
// hace falta esperar a que el access viejo expire.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("auth.Refresh"))

	claims, err := s.deps.Issuer.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		log.Debug("refresh token rejected", logger.Err(err))
		return nil, ErrTokenInvalid
	}

	user, err := s.deps.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if user.Disabled {
		return nil, ErrAccountDisabled
	}
	if user.LockedUntil != nil && s.now().Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	pair, err := s.deps.Issuer.GeneratePair(user.ID, user.Permissions)
	if err != nil {
		log.Error("issue refreshed pair", logger.UserID(user.ID), logger.Err(err))
		return nil, ErrInternal
	}

	s.deps.Audit.Event(ctx, audit.TokenRefreshed, user.ID, nil)
	return &RefreshResult{Tokens: &pair, UserID: user.ID}, nil
}

// VerifyAccess valida un access token y devuelve los claims. Puro: apto
// para el hot path de middlewares sin tocar el store.
func (s *Service) VerifyAccess(tokenStr string) (*token.Claims, error) {
	claims, err := s.deps.Issuer.Verify(tokenStr, token.TypeAccess)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Logout invalida la sesión server-side. El access token sigue siendo
// criptográficamente válido hasta su expiry; lo que muere es la sesión.
func (s *Service) Logout(ctx context.Context, sessionID, ip, userAgent string) error {
	if sessionID == "" {
		return ErrMissingFields
	}
	// Misma normalización de UA que al crear la sesión, o el binding
	// nunca matchearía para clientes con UA "sucio".
	sess, err := s.deps.Sessions.Validate(ctx, sessionID, ip, threat.Sanitize(userAgent))
	if err != nil {
		// Logout de una sesión ya muerta es un no-op, no un error.
		return nil
	}
	s.deps.Sessions.Invalidate(ctx, sessionID)
	s.deps.Audit.Event(ctx, audit.SessionRevoked, sess.UserID, map[string]any{
		"session_id": sessionID,
	})
	return nil
}

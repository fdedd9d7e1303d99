// Package session administra sesiones server-side revocables.
//
// Es el mecanismo complementario a los JWT stateless: el token expira solo,
// la sesión se puede invalidar ya. Los IDs son opacos (256 bits random),
// no llevan información del usuario.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/assessly/authcore/internal/cache"
	"github.com/assessly/authcore/internal/metrics"
	"github.com/assessly/authcore/internal/observability/logger"
	sectoken "github.com/assessly/authcore/internal/security/token"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrBindingMismatch: la sesión existe pero el request viene de otra
	// IP o user-agent. Se invalida para cortar el posible hijack.
	ErrBindingMismatch = errors.New("session binding mismatch")
)

// Session es el estado server-side de un login completado.
// Permissions es un snapshot tomado al crearla: cambios posteriores en la
// cuenta no la afectan, hay que re-loguear.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"uid"`
	Permissions []string  `json:"perms,omitempty"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"ua"`
	CreatedAt   time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

type Manager struct {
	cache      cache.Cache
	ttl        time.Duration
	bindOrigin bool
	now        func() time.Time
}

type Config struct {
	TTL time.Duration // default 24h
	// BindOrigin exige que IP y User-Agent coincidan al validar.
	// nil = true.
	BindOrigin *bool
}

func NewManager(c cache.Cache, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	bind := true
	if cfg.BindOrigin != nil {
		bind = *cfg.BindOrigin
	}
	return &Manager{cache: c, ttl: cfg.TTL, bindOrigin: bind, now: time.Now}
}

func key(id string) string { return "session:" + id }

// Create registra una sesión ligada a (ip, userAgent) y devuelve el ID opaco.
func (m *Manager) Create(ctx context.Context, userID string, perms []string, ip, userAgent string) (*Session, error) {
	id, err := sectoken.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	s := &Session{
		ID:          id,
		UserID:      userID,
		Permissions: append([]string(nil), perms...),
		IP:          ip,
		UserAgent:   userAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	m.cache.Set(key(id), raw, m.ttl)
	metrics.SessionsCreated.Inc()

	logger.From(ctx).Debug("session created",
		logger.Layer("session"),
		logger.UserID(userID),
		logger.SessionID(id),
	)
	return s, nil
}

// Validate resuelve la sesión y verifica expiry y binding. Un mismatch de
// IP o user-agent invalida la sesión además de rechazar el request.
func (m *Manager) Validate(ctx context.Context, id, ip, userAgent string) (*Session, error) {
	raw, ok := m.cache.Get(key(id))
	if !ok {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		m.cache.Delete(key(id))
		return nil, ErrNotFound
	}
	if m.now().After(s.ExpiresAt) {
		m.cache.Delete(key(id))
		return nil, ErrNotFound
	}
	if m.bindOrigin && (s.IP != ip || s.UserAgent != userAgent) {
		m.cache.Delete(key(id))
		logger.From(ctx).Warn("session binding mismatch, invalidated",
			logger.Layer("session"),
			logger.UserID(s.UserID),
			logger.SessionID(id),
			zap.String("expected_ip", s.IP),
			zap.String("got_ip", ip),
		)
		return nil, ErrBindingMismatch
	}
	return &s, nil
}

// Invalidate elimina la sesión. Idempotente: invalidar dos veces no falla.
func (m *Manager) Invalidate(ctx context.Context, id string) {
	m.cache.Delete(key(id))
}

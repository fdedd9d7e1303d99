package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth-related Prometheus metrics. Defined in a standalone package to avoid
// import cycles between the auth services and HTTP packages.

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_login_attempts_total",
		Help: "Intentos de login por resultado",
	}, []string{"outcome"}) // success | invalid_credentials | rate_limited | threat | mfa_required | error

	Lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_lockouts_total",
		Help: "Claves bloqueadas por exceso de fallos",
	})

	MFAVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_mfa_verifications_total",
		Help: "Verificaciones MFA por método y resultado",
	}, []string{"method", "outcome"}) // outcome: success | invalid_code | invalid_token | rate_limited | error

	LoginDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "authcore_login_duration_ms",
		Help:    "Latencia del flujo de login en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_sessions_created_total",
		Help: "Sesiones creadas",
	})
)

// Register registers the auth metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		LoginAttempts, Lockouts, MFAVerifications, LoginDuration, SessionsCreated,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

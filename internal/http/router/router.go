// Package router arma el árbol de rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authctrl "github.com/assessly/authcore/internal/http/controllers/auth"
	mw "github.com/assessly/authcore/internal/http/middlewares"
)

// Deps contiene las dependencias del router.
type Deps struct {
	Auth *authctrl.Controller

	// TrustProxy habilita la resolución de IP por X-Forwarded-For.
	// Solo true detrás de un reverse proxy controlado.
	TrustProxy bool
}

// New construye el handler raíz con la cadena de middlewares estándar.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/login", d.Auth.Login)
		r.Post("/mfa/verify", d.Auth.VerifyMFA)
		r.Post("/refresh", d.Auth.Refresh)
		r.Post("/logout", d.Auth.Logout)
	})

	return mw.Chain(r,
		mw.WithRequestID(),
		mw.WithClientIP(d.TrustProxy),
		mw.WithLogging(),
		mw.WithRecover(),
	)
}

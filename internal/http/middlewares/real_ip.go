package middlewares

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// WithClientIP resuelve la IP real del cliente y la deja en el contexto.
// El orden de confianza es X-Forwarded-For (primer hop), X-Real-IP y
// por último RemoteAddr. TrustProxy=false ignora los headers: en
// despliegues sin reverse proxy cualquiera puede falsificarlos y con eso
// esquivar el rate limiting por IP.
func WithClientIP(trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)
			if trustProxy {
				if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
					if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
						ip = first
					}
				} else if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
					ip = real
				}
			}
			ctx := context.WithValue(r.Context(), clientIPKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientIP recupera la IP resuelta del contexto.
func GetClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

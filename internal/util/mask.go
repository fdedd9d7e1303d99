// Package util: helpers chicos compartidos entre capas.
package util

import "strings"

// MaskEmail reduce un email a una forma segura para logs y auditoría.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		if s == "" {
			return ""
		}
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	dparts := strings.Split(dom, ".")
	if len(dparts) > 0 && len(dparts[0]) > 1 {
		dparts[0] = dparts[0][:1] + "…"
	}
	return user + "@" + strings.Join(dparts, ".")
}

// MaskPhone deja visibles solo los últimos 4 dígitos.
func MaskPhone(p string) string {
	p = strings.TrimSpace(p)
	if len(p) <= 4 {
		return "****"
	}
	return "****" + p[len(p)-4:]
}

// MaskCode deja los dos primeros caracteres de un código one-time:
// suficiente para correlacionar en soporte, inútil para reconstruirlo.
func MaskCode(code string) string {
	if len(code) <= 2 {
		return code + "****"
	}
	return code[:2] + "****"
}

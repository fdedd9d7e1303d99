package threat

import (
	"regexp"
	"strings"
)

var (
	reAngle   = regexp.MustCompile(`[<>]`)
	reJSProto = regexp.MustCompile(`(?i)javascript:`)
	reHandler = regexp.MustCompile(`(?i)on\w+=`)
)

// Sanitize normaliza input de usuario: quita angle brackets, URLs javascript:
// y atributos de event handlers, y recorta espacios. No es una defensa por sí
// sola; el input sanitizado igualmente pasa por Safe/Detect.
func Sanitize(raw string) string {
	s := reAngle.ReplaceAllString(raw, "")
	s = reJSProto.ReplaceAllString(s, "")
	s = reHandler.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

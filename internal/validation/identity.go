// Package validation contiene las reglas de formato para identificadores
// de cuenta. Formato, no seguridad: la detección de input hostil vive en
// security/threat.
package validation

import "regexp"

// Username rules:
// - Lowercase letters, digits, "." "_" "-".
// - Start and end with [a-z0-9].
// - Length 3..64.
//
// Examples valid: alice, alice.b, a_b-c1
// Examples invalid: al, .alice, alice., Alice, "a b", 65+ chars.
var usernameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]{1,62}[a-z0-9])$`)

// emailRe es deliberadamente permisivo: el objetivo es descartar basura
// obvia, no implementar RFC 5322.
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// phoneRe acepta E.164: "+" y 8 a 15 dígitos.
var phoneRe = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// ValidUsername reporta si el string es un username bien formado.
func ValidUsername(s string) bool { return usernameRe.MatchString(s) }

// ValidEmail reporta si el string tiene forma de email.
func ValidEmail(s string) bool {
	return len(s) <= 254 && emailRe.MatchString(s)
}

// ValidIdentifier acepta lo que el login recibe como identificador:
// username o email.
func ValidIdentifier(s string) bool {
	return ValidUsername(s) || ValidEmail(s)
}

// ValidPhone reporta si el string es un número E.164.
func ValidPhone(s string) bool { return phoneRe.MatchString(s) }

package auth

import "errors"

// Errores del flujo de autenticación. El mapeo a HTTP vive en el
// paquete http/errors; acá son valores comparables con errors.Is.
var (
	ErrMissingFields = errors.New("missing required fields")
	// ErrInvalidCredentials cubre usuario inexistente y password incorrecto
	// con la misma respuesta, para no permitir enumeración de cuentas.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountLocked      = errors.New("account locked")
	ErrRateLimited        = errors.New("too many attempts")
	// ErrThreatDetected: el input matcheó un patrón de inyección. Se
	// rechaza entero, no se sanitiza.
	ErrThreatDetected = errors.New("malicious input rejected")
	// ErrInvalidIdentifier: el identificador no tiene forma de username
	// ni de email. No cuenta como intento fallido.
	ErrInvalidIdentifier = errors.New("identifier format invalid")

	ErrChallengeInvalid   = errors.New("mfa challenge invalid or expired")
	ErrMFACodeInvalid     = errors.New("mfa code invalid")
	ErrMFATooManyAttempts = errors.New("mfa attempt limit reached")
	ErrMFAMethodUnknown   = errors.New("unknown mfa method")

	ErrTokenInvalid = errors.New("token invalid or expired")
	ErrInternal     = errors.New("internal error")
)

// Package types contiene los value objects del dominio de autenticación.
package types

import "time"

// User es la identidad externa tal como la entrega el user store.
// El core la lee; la persistencia y su esquema pertenecen al store.
type User struct {
	ID          string
	Username    string
	Email       string
	Phone       string
	Role        string
	Permissions []string
	// PasswordHash en formato PHC (argon2id). Nunca viaja en tokens ni logs.
	PasswordHash string
	Disabled     bool

	// Contadores persistidos de fallos (complementan el lockout in-memory/redis).
	FailedAttempts int
	LockedUntil    *time.Time

	LastLoginAt *time.Time
	LastLoginIP string

	// MFA es nil si la cuenta no tiene MFA enrolado.
	MFA *MFAEnrollment
}

// RequiresMFA indica si el login debe suspenderse en un challenge.
func (u *User) RequiresMFA() bool { return u.MFA != nil && u.MFA.Enabled }

// MFAEnrollment es el estado de enrolamiento multi-factor de una cuenta.
type MFAEnrollment struct {
	Enabled bool
	// TOTPSecret en base32 sin padding. Vacío = TOTP no enrolado.
	TOTPSecret string
	// TOTPLastCounter es el último contador aceptado (anti-replay).
	TOTPLastCounter *int64
	// BackupCodeHashes: sha256 base64url de cada código restante.
	BackupCodeHashes []string
	// Destinos registrados para códigos por SMS / email.
	PhoneNumber  string
	CodeEmail    string
	EnrolledAt   time.Time
	LastVerified *time.Time
}

// TrustedDevice es un marcador informativo: el core lo registra a pedido
// pero no lo usa para saltear MFA (esa política es del caller).
type TrustedDevice struct {
	ID        string
	UserID    string
	IP        string
	UserAgent string
	CreatedAt time.Time
}

package auth

import (
	"github.com/assessly/authcore/internal/mfa"
	"github.com/assessly/authcore/internal/token"
)

// LoginInput es el request normalizado de login.
type LoginInput struct {
	Identifier string // username o email
	Password   string
	IP         string
	UserAgent  string
}

// LoginResult es el resultado de un login aceptado. Una de dos formas:
// credenciales completas (Tokens + SessionID) o challenge MFA pendiente.
type LoginResult struct {
	MFARequired    bool         `json:"mfa_required"`
	ChallengeToken string       `json:"challenge_token,omitempty"`
	Methods        []mfa.Method `json:"methods,omitempty"`

	Tokens    *token.Pair `json:"tokens,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
}

// MFAVerifyInput es el request de verificación de segundo factor.
type MFAVerifyInput struct {
	ChallengeToken string
	Method         string
	Code           string
	IP             string
	UserAgent      string
	// TrustDevice registra (IP, UserAgent) como dispositivo confiable
	// para saltear MFA en logins futuros desde el mismo origen.
	TrustDevice bool
}

// MFAVerifyResult completa el login suspendido.
type MFAVerifyResult struct {
	Tokens    *token.Pair `json:"tokens"`
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	// NewBackupCodes se entrega una única vez cuando el set se regeneró.
	NewBackupCodes []string `json:"new_backup_codes,omitempty"`
}

// RefreshResult es el resultado de canjear un refresh token.
type RefreshResult struct {
	Tokens *token.Pair `json:"tokens"`
	UserID string      `json:"user_id"`
}

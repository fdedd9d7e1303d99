// Package repository define el contrato con el user store externo.
//
// El core trata estos campos como opacos: los lee y pide mutaciones puntuales
// sin ser dueño del formato de almacenamiento.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/assessly/authcore/internal/domain/types"
)

var ErrNotFound = errors.New("user not found")

// UserStore es el colaborador externo de persistencia de usuarios.
type UserStore interface {
	// GetByIdentifier busca por username o email.
	GetByIdentifier(ctx context.Context, identifier string) (*types.User, error)
	GetByID(ctx context.Context, id string) (*types.User, error)

	// Contadores de fallos y lockout persistidos en la cuenta.
	// RecordFailedLogin devuelve el total acumulado, para que el caller
	// decida si corresponde bloquear la cuenta.
	RecordFailedLogin(ctx context.Context, userID string) (int, error)
	ClearFailedLogins(ctx context.Context, userID string) error
	SetLockedUntil(ctx context.Context, userID string, until time.Time) error

	UpdateLastLogin(ctx context.Context, userID, ip, userAgent string) error

	// SetBackupCodes reemplaza el set completo (hashes, no claros).
	SetBackupCodes(ctx context.Context, userID string, hashes []string) error
	// ConsumeBackupCode elimina el hash si existe, atómico por usuario.
	// remaining es la cantidad de códigos que quedan después del consumo.
	ConsumeBackupCode(ctx context.Context, userID, hash string) (remaining int, ok bool, err error)

	SetTOTPLastCounter(ctx context.Context, userID string, counter int64) error

	AddTrustedDevice(ctx context.Context, dev types.TrustedDevice) error
	// HasTrustedDevice chequea si (ip, userAgent) ya fue registrado para la cuenta.
	HasTrustedDevice(ctx context.Context, userID, ip, userAgent string) (bool, error)
}

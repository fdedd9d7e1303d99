// Package pg implementa repository.UserStore sobre PostgreSQL (pgx v5).
//
// Esquema esperado en migrations/. Los backup codes viven en su propia
// tabla para que el consumo sea un DELETE atómico por fila.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assessly/authcore/internal/domain/repository"
	"github.com/assessly/authcore/internal/domain/types"
)

type Store struct{ pool *pgxpool.Pool }

func New(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		pcfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewFromPool permite inyectar un pool ya construido (tests, apps embebidas).
func NewFromPool(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

const userCols = `
	u.id, u.username, u.email, u.phone, u.role, u.permissions,
	u.password_hash, u.disabled, u.failed_attempts, u.locked_until,
	u.last_login_at, u.last_login_ip,
	m.enabled, m.totp_secret, m.totp_last_counter, m.phone_number,
	m.code_email, m.enrolled_at, m.last_verified`

const userFrom = `
	FROM users u
	LEFT JOIN user_mfa m ON m.user_id = u.id`

func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (*types.User, error) {
	q := `SELECT ` + userCols + userFrom + `
		WHERE lower(u.username) = lower($1) OR lower(u.email) = lower($1)`
	return s.queryUser(ctx, q, identifier)
}

func (s *Store) GetByID(ctx context.Context, id string) (*types.User, error) {
	q := `SELECT ` + userCols + userFrom + ` WHERE u.id = $1`
	return s.queryUser(ctx, q, id)
}

func (s *Store) queryUser(ctx context.Context, q string, arg any) (*types.User, error) {
	row := s.pool.QueryRow(ctx, q, arg)

	var (
		u            types.User
		phone        *string
		lastLoginIP  *string
		mfaEnabled   *bool
		totpSecret   *string
		totpCounter  *int64
		mfaPhone     *string
		mfaEmail     *string
		enrolledAt   *time.Time
		lastVerified *time.Time
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &phone, &u.Role, &u.Permissions,
		&u.PasswordHash, &u.Disabled, &u.FailedAttempts, &u.LockedUntil,
		&u.LastLoginAt, &lastLoginIP,
		&mfaEnabled, &totpSecret, &totpCounter, &mfaPhone,
		&mfaEmail, &enrolledAt, &lastVerified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if phone != nil {
		u.Phone = *phone
	}
	if lastLoginIP != nil {
		u.LastLoginIP = *lastLoginIP
	}

	if mfaEnabled != nil {
		enr := &types.MFAEnrollment{
			Enabled:         *mfaEnabled,
			TOTPLastCounter: totpCounter,
			LastVerified:    lastVerified,
		}
		if totpSecret != nil {
			enr.TOTPSecret = *totpSecret
		}
		if mfaPhone != nil {
			enr.PhoneNumber = *mfaPhone
		}
		if mfaEmail != nil {
			enr.CodeEmail = *mfaEmail
		}
		if enrolledAt != nil {
			enr.EnrolledAt = *enrolledAt
		}
		hashes, err := s.backupCodeHashes(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		enr.BackupCodeHashes = hashes
		u.MFA = enr
	}
	return &u, nil
}

func (s *Store) backupCodeHashes(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code_hash FROM mfa_backup_codes WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) RecordFailedLogin(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`UPDATE users SET failed_attempts = failed_attempts + 1 WHERE id = $1
		 RETURNING failed_attempts`, userID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ClearFailedLogins(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET failed_attempts = 0, locked_until = NULL WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) SetLockedUntil(ctx context.Context, userID string, until time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET locked_until = $2 WHERE id = $1`, userID, until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID, ip, userAgent string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET last_login_at = NOW(), last_login_ip = $2 WHERE id = $1`,
		userID, ip)
	return err
}

func (s *Store) SetBackupCodes(ctx context.Context, userID string, hashes []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	var b pgx.Batch
	for _, h := range hashes {
		b.Queue(`INSERT INTO mfa_backup_codes (user_id, code_hash) VALUES ($1,$2)`, userID, h)
	}
	br := tx.SendBatch(ctx, &b)
	for range hashes {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ConsumeBackupCode: el DELETE por (user_id, code_hash) es atómico a nivel
// fila, así que dos submissions concurrentes del mismo código no pueden
// consumirlo dos veces.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID, hash string) (int, bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM mfa_backup_codes WHERE user_id = $1 AND code_hash = $2`, userID, hash)
	if err != nil {
		return 0, false, err
	}
	var remaining int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM mfa_backup_codes WHERE user_id = $1`, userID).Scan(&remaining); err != nil {
		return 0, false, err
	}
	return remaining, tag.RowsAffected() > 0, nil
}

func (s *Store) SetTOTPLastCounter(ctx context.Context, userID string, counter int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE user_mfa SET totp_last_counter = $2 WHERE user_id = $1`, userID, counter)
	return err
}

func (s *Store) AddTrustedDevice(ctx context.Context, dev types.TrustedDevice) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trusted_devices (id, user_id, ip, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, ip, user_agent) DO NOTHING`,
		dev.ID, dev.UserID, dev.IP, dev.UserAgent, dev.CreatedAt)
	return err
}

func (s *Store) HasTrustedDevice(ctx context.Context, userID, ip, userAgent string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM trusted_devices
			WHERE user_id = $1 AND ip = $2 AND user_agent = $3
		)`, userID, ip, userAgent).Scan(&exists)
	return exists, err
}

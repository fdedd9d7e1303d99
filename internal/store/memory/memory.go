// Package memory implementa repository.UserStore in-process.
// Pensado para single-instance, tests y seeds de desarrollo.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/assessly/authcore/internal/domain/repository"
	"github.com/assessly/authcore/internal/domain/types"
)

type Store struct {
	mu      sync.RWMutex
	byID    map[string]*types.User
	devices map[string][]types.TrustedDevice // userID -> devices
}

func New() *Store {
	return &Store{
		byID:    make(map[string]*types.User),
		devices: make(map[string][]types.TrustedDevice),
	}
}

// Seed agrega o reemplaza un usuario. Solo para bootstrap/tests.
func (s *Store) Seed(u *types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[u.ID] = cloneUser(u)
}

func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (*types.User, error) {
	id := strings.ToLower(strings.TrimSpace(identifier))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if strings.ToLower(u.Username) == id || strings.ToLower(u.Email) == id {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetByID(ctx context.Context, id string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) RecordFailedLogin(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	u.FailedAttempts++
	return u.FailedAttempts, nil
}

func (s *Store) ClearFailedLogins(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (s *Store) SetLockedUntil(ctx context.Context, userID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.LockedUntil = &until
	return nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID, ip, userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	u.LastLoginIP = ip
	return nil
}

func (s *Store) SetBackupCodes(ctx context.Context, userID string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.MFA == nil {
		u.MFA = &types.MFAEnrollment{}
	}
	u.MFA.BackupCodeHashes = append([]string(nil), hashes...)
	return nil
}

func (s *Store) ConsumeBackupCode(ctx context.Context, userID, hash string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok || u.MFA == nil {
		return 0, false, repository.ErrNotFound
	}
	codes := u.MFA.BackupCodeHashes
	for i, h := range codes {
		if h == hash {
			u.MFA.BackupCodeHashes = append(codes[:i:i], codes[i+1:]...)
			return len(u.MFA.BackupCodeHashes), true, nil
		}
	}
	return len(codes), false, nil
}

func (s *Store) SetTOTPLastCounter(ctx context.Context, userID string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok || u.MFA == nil {
		return repository.ErrNotFound
	}
	c := counter
	u.MFA.TOTPLastCounter = &c
	return nil
}

func (s *Store) AddTrustedDevice(ctx context.Context, dev types.TrustedDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[dev.UserID] = append(s.devices[dev.UserID], dev)
	return nil
}

func (s *Store) HasTrustedDevice(ctx context.Context, userID, ip, userAgent string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices[userID] {
		if d.IP == ip && d.UserAgent == userAgent {
			return true, nil
		}
	}
	return false, nil
}

func cloneUser(u *types.User) *types.User {
	cp := *u
	cp.Permissions = append([]string(nil), u.Permissions...)
	if u.MFA != nil {
		m := *u.MFA
		m.BackupCodeHashes = append([]string(nil), u.MFA.BackupCodeHashes...)
		if u.MFA.TOTPLastCounter != nil {
			c := *u.MFA.TOTPLastCounter
			m.TOTPLastCounter = &c
		}
		cp.MFA = &m
	}
	return &cp
}

package session

import (
	"context"
	"testing"
	"time"

	cachemem "github.com/assessly/authcore/internal/cache/memory"
)

func newTestManager() *Manager {
	return NewManager(cachemem.New(time.Minute), Config{TTL: time.Hour})
}

func TestCreateValidate(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	s, err := m.Create(ctx, "u-1", nil, "10.0.0.1", "curl/8")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if s.ID == "" || s.UserID != "u-1" {
		t.Fatalf("unexpected session: %+v", s)
	}

	got, err := m.Validate(ctx, s.ID, "10.0.0.1", "curl/8")
	if err != nil {
		t.Fatalf("Validate err: %v", err)
	}
	if got.UserID != "u-1" {
		t.Fatalf("UserID = %q", got.UserID)
	}
}

func TestPermissionsAreSnapshotted(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	perms := []string{"quiz:take"}
	s, err := m.Create(ctx, "u-1", perms, "10.0.0.1", "curl/8")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	perms[0] = "quiz:admin"

	got, err := m.Validate(ctx, s.ID, "10.0.0.1", "curl/8")
	if err != nil {
		t.Fatalf("Validate err: %v", err)
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "quiz:take" {
		t.Fatalf("Permissions = %v, want snapshot at create time", got.Permissions)
	}
}

func TestValidate_UnknownID(t *testing.T) {
	m := newTestManager()
	if _, err := m.Validate(context.Background(), "nope", "10.0.0.1", "curl/8"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidate_BindingMismatchInvalidates(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	s, _ := m.Create(ctx, "u-1", nil, "10.0.0.1", "curl/8")

	if _, err := m.Validate(ctx, s.ID, "10.0.0.2", "curl/8"); err != ErrBindingMismatch {
		t.Fatalf("expected ErrBindingMismatch, got %v", err)
	}
	// Y después del mismatch la sesión ya no existe.
	if _, err := m.Validate(ctx, s.ID, "10.0.0.1", "curl/8"); err != ErrNotFound {
		t.Fatalf("session should be gone after mismatch, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	s, _ := m.Create(ctx, "u-1", nil, "10.0.0.1", "curl/8")

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.Validate(ctx, s.ID, "10.0.0.1", "curl/8"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestInvalidate_Idempotent(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	s, _ := m.Create(ctx, "u-1", nil, "10.0.0.1", "curl/8")

	m.Invalidate(ctx, s.ID)
	m.Invalidate(ctx, s.ID)
	if _, err := m.Validate(ctx, s.ID, "10.0.0.1", "curl/8"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after invalidate, got %v", err)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := m.Create(ctx, "u-1", nil, "10.0.0.1", "curl/8")
		if err != nil {
			t.Fatal(err)
		}
		if seen[s.ID] {
			t.Fatalf("duplicate session id %q", s.ID)
		}
		seen[s.ID] = true
	}
}

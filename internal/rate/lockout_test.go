package rate

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestLockout(threshold int, lockFor time.Duration) (*Lockout, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	return NewLockout(s, Config{Threshold: threshold, LockFor: lockFor}), &now
}

func TestAllow_NoEntry(t *testing.T) {
	l, _ := newTestLockout(3, 5*time.Minute)
	if !l.Allow("1.2.3.4") {
		t.Fatal("fresh key should be allowed")
	}
}

func TestLockout_AfterThreshold(t *testing.T) {
	l, now := newTestLockout(3, 5*time.Minute)
	key := "user@example.com"

	for i := 0; i < 2; i++ {
		l.RecordFailure(key)
		if !l.Allow(key) {
			t.Fatalf("should still be allowed after %d failures", i+1)
		}
	}
	l.RecordFailure(key)
	if l.Allow(key) {
		t.Fatal("should be locked after 3 failures")
	}
	if ra := l.RetryAfter(key); ra != 5*time.Minute {
		t.Fatalf("RetryAfter = %v, want 5m", ra)
	}

	// Dentro de la ventana de bloqueo sigue rechazado.
	*now = now.Add(4 * time.Minute)
	if l.Allow(key) {
		t.Fatal("should remain locked before the lock expires")
	}

	// Vencido el lockout, se permite sin limpiar la entry.
	*now = now.Add(2 * time.Minute)
	if !l.Allow(key) {
		t.Fatal("expired lockout should allow")
	}
}

func TestClear_ResetsImmediately(t *testing.T) {
	l, _ := newTestLockout(2, time.Minute)
	key := "k"
	l.RecordFailure(key)
	l.RecordFailure(key)
	if l.Allow(key) {
		t.Fatal("should be locked")
	}
	l.Clear(key)
	if !l.Allow(key) {
		t.Fatal("cleared key should be allowed")
	}
	if ra := l.RetryAfter(key); ra != 0 {
		t.Fatalf("RetryAfter after clear = %v", ra)
	}
}

func TestRecordFailure_RestartsAfterWindow(t *testing.T) {
	l, now := newTestLockout(3, 5*time.Minute)
	key := "k"
	l.RecordFailure(key)
	l.RecordFailure(key)

	// Pasada la ventana sin bloquear, la acumulación arranca de nuevo.
	*now = now.Add(10 * time.Minute)
	l.RecordFailure(key)
	if !l.Allow(key) {
		t.Fatal("stale failures should not count toward lockout")
	}
}

func TestLockout_IndependentKeys(t *testing.T) {
	l, _ := newTestLockout(1, time.Minute)
	l.RecordFailure("a")
	if l.Allow("a") {
		t.Fatal("a should be locked")
	}
	if !l.Allow("b") {
		t.Fatal("b must not be affected by a's lockout")
	}
}

// El incremento es atómico dentro del store: 50 goroutines registrando
// contra la misma clave no pueden perder ni un fallo. El backend redis da
// la misma garantía vía INCR server-side.
func TestRecordFailure_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	l := NewLockout(s, Config{Threshold: 100, LockFor: time.Minute})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RecordFailure("shared")
		}()
	}
	wg.Wait()
	s.mu.RLock()
	n := s.entries["shared"].failures
	s.mu.RUnlock()
	if n != 50 {
		t.Fatalf("expected 50 recorded failures, got %d", n)
	}
}

func TestMemoryStore_WindowExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	if n := s.Incr("k", time.Minute); n != 1 {
		t.Fatalf("first Incr = %d", n)
	}
	now = now.Add(2 * time.Minute)
	if n := s.Incr("k", time.Minute); n != 1 {
		t.Fatalf("stale count should restart at 1, got %d", n)
	}
}

func TestMemoryStore_PurgeOnWrite(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 1100; i++ {
		s.Incr(fmt.Sprintf("k%d", i), -time.Second)
	}
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()
	if n >= 1024 {
		t.Fatalf("expired entries not purged, size=%d", n)
	}
}

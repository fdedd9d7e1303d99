package rate

import (
	"sync"
	"time"
)

// MemoryStore es el backend in-process. El mutex cubre el read-modify-write
// completo de Incr, así la cuenta nunca pierde fallos concurrentes.
// Para lockout compartido entre instancias usar RedisStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry

	now func() time.Time // inyectable en tests
}

type memEntry struct {
	failures     int
	countExpires time.Time
	lockedUntil  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry), now: time.Now}
}

func (s *MemoryStore) Incr(key string, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.entries[key]
	// Ventana vencida: la acumulación recomienza desde cero.
	if !ok || now.After(e.countExpires) {
		lockedUntil := time.Time{}
		if ok {
			lockedUntil = e.lockedUntil
		}
		e = &memEntry{countExpires: now.Add(window), lockedUntil: lockedUntil}
		s.entries[key] = e
		s.purgeLocked(now)
	}
	e.failures++
	return e.failures
}

func (s *MemoryStore) Lock(key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.entries[key]
	if !ok {
		e = &memEntry{countExpires: now.Add(ttl)}
		s.entries[key] = e
	}
	e.lockedUntil = now.Add(ttl)
}

func (s *MemoryStore) LockRemaining(key string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return 0
	}
	if d := e.lockedUntil.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// purgeLocked descarta entries vencidas para que el mapa no crezca sin
// límite. Se llama con el mutex tomado.
func (s *MemoryStore) purgeLocked(now time.Time) {
	if len(s.entries) <= 1024 {
		return
	}
	for k, v := range s.entries {
		if now.After(v.countExpires) && now.After(v.lockedUntil) {
			delete(s.entries, k)
		}
	}
}

package memory

import (
	"sync"
	"time"

	"github.com/assessly/authcore/internal/cache"
	gocache "github.com/patrickmn/go-cache"
)

type Mem struct {
	c *gocache.Cache
	// mu serializa GetDel para que dos consumidores no obtengan el mismo valor.
	mu sync.Mutex
}

func New(defaultTTL time.Duration) cache.Cache {
	return &Mem{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Mem) Get(k string) ([]byte, bool) {
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Set(k string, v []byte, ttl time.Duration) { m.c.Set(k, v, ttl) }

func (m *Mem) GetDel(k string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	m.c.Delete(k)
	b, _ := v.([]byte)
	return b, true
}

func (m *Mem) Delete(k string) { m.c.Delete(k) }

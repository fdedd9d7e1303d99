package rate

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// RedisStore comparte el estado de lockout entre instancias. El contador es
// un INCR: atómico server-side, dos instancias concurrentes nunca pisan el
// incremento de la otra. El lock es una clave aparte con su propio TTL.
// Los errores de red se tragan: todo falla como miss / no-op, para cumplir
// el contrato de que el rate limiter nunca lanza hacia el caller.
type RedisStore struct {
	client *rdb.Client
	prefix string
}

func NewRedisStore(client *rdb.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lockout:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) lockKey(key string) string { return s.prefix + key + ":lock" }

func (s *RedisStore) Incr(key string, window time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := s.client.Incr(ctx, s.prefix+key).Result()
	if err != nil {
		return 0
	}
	// El primer fallo fija la ventana; el TTL no se renueva en cada Incr.
	if n == 1 {
		_ = s.client.Expire(ctx, s.prefix+key, window).Err()
	}
	return int(n)
}

func (s *RedisStore) Lock(key string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.client.Set(ctx, s.lockKey(key), 1, ttl).Err()
}

func (s *RedisStore) LockRemaining(key string) time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := s.client.PTTL(ctx, s.lockKey(key)).Result()
	// PTTL negativo: clave inexistente o sin expiración.
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

func (s *RedisStore) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.client.Del(ctx, s.prefix+key, s.lockKey(key)).Err()
}

// Package rate implementa el tracker de intentos fallidos con lockout por clave.
//
// La clave es una IP o un identificador de cuenta. Cada fallo incrementa un
// contador; al cruzar el umbral la clave queda bloqueada por una duración fija,
// sin importar si los intentos siguientes traen credenciales correctas.
//
// No hay sweep en background: la expiración se resuelve al leer, para no
// acumular timers por clave.
package rate

import (
	"time"

	"github.com/assessly/authcore/internal/metrics"
)

// Store lleva el contador de fallos y el lock por clave. El incremento es
// atómico DENTRO del store: en memoria bajo su mutex, en redis como INCR
// server-side, así dos instancias compartiendo el backend nunca pierden un
// fallo. Los backends tragan sus propios errores: un fallo de infraestructura
// se comporta como miss, nunca bloquea al caller.
type Store interface {
	// Incr suma un fallo y devuelve el total acumulado. El primer fallo de
	// una clave fija la ventana; pasada la ventana la acumulación recomienza.
	Incr(key string, window time.Duration) int
	// Lock bloquea la clave por ttl a partir de ahora.
	Lock(key string, ttl time.Duration)
	// LockRemaining devuelve cuánto falta para el desbloqueo (0 = libre).
	LockRemaining(key string) time.Duration
	// Delete borra contador y lock.
	Delete(key string)
}

// Lockout aplica la política de umbral + bloqueo sobre un Store.
type Lockout struct {
	store     Store
	threshold int
	lockFor   time.Duration
	window    time.Duration
}

// Config de un Lockout. Threshold y LockFor difieren por call site
// (login: 5 / 15m, MFA: 3 / 5m); Window acota la acumulación de fallos
// y por defecto es igual a LockFor.
type Config struct {
	Threshold int
	LockFor   time.Duration
	Window    time.Duration
}

func NewLockout(store Store, cfg Config) *Lockout {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.LockFor <= 0 {
		cfg.LockFor = 15 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = cfg.LockFor
	}
	return &Lockout{
		store:     store,
		threshold: cfg.Threshold,
		lockFor:   cfg.LockFor,
		window:    cfg.Window,
	}
}

// Threshold es el número de fallos que dispara el bloqueo.
func (l *Lockout) Threshold() int { return l.threshold }

// LockFor es la duración del bloqueo una vez disparado.
func (l *Lockout) LockFor() time.Duration { return l.lockFor }

// Allow retorna false solo si la clave está bloqueada ahora mismo.
// Un lockout vencido cuenta como permitido.
func (l *Lockout) Allow(key string) bool {
	return l.store.LockRemaining(key) == 0
}

// RecordFailure suma un fallo y bloquea la clave al cruzar el umbral.
// Fallos posteriores al umbral renuevan el bloqueo. Nunca retorna error.
func (l *Lockout) RecordFailure(key string) {
	n := l.store.Incr(key, l.window)
	if n >= l.threshold {
		l.store.Lock(key, l.lockFor)
		if n == l.threshold {
			metrics.Lockouts.Inc()
		}
	}
}

// Clear borra el estado de la clave (se llama en cada éxito).
func (l *Lockout) Clear(key string) {
	l.store.Delete(key)
}

// RetryAfter informa cuánto falta para que la clave se desbloquee (0 = no bloqueada).
func (l *Lockout) RetryAfter(key string) time.Duration {
	return l.store.LockRemaining(key)
}

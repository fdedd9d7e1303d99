// Package cache define la abstracción de cache con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, para single-instance y tests)
//   - Redis (distribuido, para despliegues multi-instancia)
package cache

import "time"

// Cache expone las operaciones mínimas que usan sesiones y códigos OTP.
// Los backends nunca retornan error al caller: un miss y un fallo de backend
// se reportan igual (ok=false) para no filtrar detalles de infraestructura.
type Cache interface {
	Get(k string) ([]byte, bool)
	Set(k string, v []byte, ttl time.Duration)
	// GetDel obtiene y elimina atómicamente. Retorna ok=false si no existe.
	GetDel(k string) ([]byte, bool)
	Delete(k string)
}

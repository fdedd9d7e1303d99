package notify

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/assessly/authcore/internal/cache"
	sectoken "github.com/assessly/authcore/internal/security/token"
)

// Codes almacena los códigos one-time que viajan por SMS o email.
// Guarda solo el hash: un dump del cache no expone códigos válidos.
type Codes struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewCodes(c cache.Cache, ttl time.Duration) *Codes {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Codes{cache: c, ttl: ttl}
}

func codeKey(userID, method string) string {
	return "otpcode:" + method + ":" + userID
}

// Issue genera un código de 6 dígitos, lo registra (hasheado) y lo devuelve
// en claro para que el caller lo despache por el canal que corresponda.
// Un issue nuevo reemplaza al anterior del mismo (usuario, método).
func (c *Codes) Issue(userID, method string) (string, error) {
	code, err := randomDigits(6)
	if err != nil {
		return "", err
	}
	c.cache.Set(codeKey(userID, method), []byte(sectoken.SHA256Base64URL(code)), c.ttl)
	return code, nil
}

// Consume valida y elimina el código en una sola operación. Un código
// equivocado también consume: el atacante no puede reintentar contra el
// mismo código emitido.
func (c *Codes) Consume(userID, method, submitted string) bool {
	stored, ok := c.cache.GetDel(codeKey(userID, method))
	if !ok {
		return false
	}
	return sectoken.ConstantTimeEquals(string(stored), sectoken.SHA256Base64URL(submitted))
}

func randomDigits(n int) (string, error) {
	max := big.NewInt(10)
	out := make([]byte, n)
	for i := range out {
		d, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}

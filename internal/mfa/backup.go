package mfa

import (
	"crypto/rand"
	"strings"

	sectoken "github.com/assessly/authcore/internal/security/token"
)

// Alfabeto sin caracteres ambiguos (0/O, 1/I/L).
const backupAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateBackupCodes genera n códigos con formato XXXX-XXXX y sus hashes
// listos para persistir. El claro se muestra una sola vez.
func GenerateBackupCodes(n int) (plain []string, hashes []string, err error) {
	plain = make([]string, 0, n)
	hashes = make([]string, 0, n)
	for i := 0; i < n; i++ {
		code, err := randomBackupCode()
		if err != nil {
			return nil, nil, err
		}
		plain = append(plain, code)
		hashes = append(hashes, sectoken.SHA256Base64URL(normalizeBackupCode(code)))
	}
	return plain, hashes, nil
}

func randomBackupCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, x := range b {
		if i == 4 {
			sb.WriteByte('-')
		}
		sb.WriteByte(backupAlphabet[int(x)%len(backupAlphabet)])
	}
	return sb.String(), nil
}

// normalizeBackupCode tolera el código con o sin guión y en minúsculas.
func normalizeBackupCode(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
}

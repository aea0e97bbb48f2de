package auth

import (
	"crypto/subtle"
	"strings"

	"memorymap/internal/memory"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes.
const bcryptMaxInput = 72

// KeyGate checks the shared posting key. The secret is either plaintext or a
// bcrypt hash.
type KeyGate struct {
	secret []byte
	hashed bool
}

func NewKeyGate(secret string) *KeyGate {
	return &KeyGate{
		secret: []byte(secret),
		hashed: isBcrypt(secret),
	}
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func (g *KeyGate) Check(key string) error {
	if g == nil || len(g.secret) == 0 {
		return memory.ErrConfiguration
	}
	if key == "" {
		return memory.ErrUnauthorized
	}
	if g.hashed {
		if len(key) > bcryptMaxInput {
			return memory.ErrUnauthorized
		}
		if bcrypt.CompareHashAndPassword(g.secret, []byte(key)) != nil {
			return memory.ErrUnauthorized
		}
		return nil
	}
	if subtle.ConstantTimeCompare(g.secret, []byte(key)) != 1 {
		return memory.ErrUnauthorized
	}
	return nil
}

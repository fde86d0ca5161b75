package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltLength = 16
	Iterations = 100000
	KeyLength  = 32
)

// HashPassword derives a PBKDF2-SHA256 key from password with a fresh random
// salt and returns base64(salt || key).
func HashPassword(password string) (string, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := derive(password, salt)

	combined := make([]byte, 0, SaltLength+KeyLength)
	combined = append(combined, salt...)
	combined = append(combined, key...)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// CheckPassword reports whether password matches the encoded hash produced by
// HashPassword. Malformed hashes never match.
func CheckPassword(encoded, password string) bool {
	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(combined) != SaltLength+KeyLength {
		return false
	}

	salt := combined[:SaltLength]
	stored := combined[SaltLength:]

	return constantTimeEqual(derive(password, salt), stored)
}

func derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeyLength, sha256.New)
}

// constantTimeEqual accumulates the XOR of every byte pair so the running time
// does not depend on the position of the first difference.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := 0; i < len(a); i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

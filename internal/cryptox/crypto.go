// Package cryptox implements password hashing for the login flow using
// Argon2id with a per-user random salt.
package cryptox

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// HashPassword derives a 32-byte Argon2id hash of password with the given
// salt. The same parameters must be used for hashing and verification.
func HashPassword(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// CheckPassword reports whether candidate hashes to the stored value.
// The comparison is constant-time.
func CheckPassword(candidate []byte, salt []byte, hash []byte) bool {
	derived := HashPassword(candidate, salt)
	return subtle.ConstantTimeCompare(derived, hash) == 1
}

package cryptox

import (
	"bytes"
	"testing"
)

func TestHashPassword_Deterministic(t *testing.T) {
	t.Parallel()

	salt := []byte("0123456789abcdef")
	a := HashPassword([]byte("s3cret"), salt)
	b := HashPassword([]byte("s3cret"), salt)

	if len(a) != 32 {
		t.Fatalf("expected 32-byte hash, got %d", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same password and salt must produce the same hash")
	}
}

func TestHashPassword_SaltMatters(t *testing.T) {
	t.Parallel()

	a := HashPassword([]byte("s3cret"), []byte("salt-one________"))
	b := HashPassword([]byte("s3cret"), []byte("salt-two________"))

	if bytes.Equal(a, b) {
		t.Fatalf("different salts must produce different hashes")
	}
}

func TestCheckPassword(t *testing.T) {
	t.Parallel()

	salt := []byte("0123456789abcdef")
	hash := HashPassword([]byte("correct horse"), salt)

	if !CheckPassword([]byte("correct horse"), salt, hash) {
		t.Fatalf("expected matching password to verify")
	}
	if CheckPassword([]byte("battery staple"), salt, hash) {
		t.Fatalf("expected wrong password to fail verification")
	}
}

package app

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretVerifier checks the operator secret presented for a cash cut.
type SecretVerifier interface {
	Verify(secret string) bool
}

type plainSecret struct {
	expected []byte
}

// NewPlainSecret compares against a configured secret in constant time.
// An empty configured secret rejects everything.
func NewPlainSecret(secret string) SecretVerifier {
	return plainSecret{expected: []byte(secret)}
}

func (p plainSecret) Verify(secret string) bool {
	if len(p.expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), p.expected) == 1
}

type bcryptSecret struct {
	hash []byte
}

// NewBcryptSecret verifies against a bcrypt hash of the operator secret.
func NewBcryptSecret(hash string) (SecretVerifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid bcrypt hash: %w", err)
	}
	return bcryptSecret{hash: []byte(hash)}, nil
}

func (b bcryptSecret) Verify(secret string) bool {
	return bcrypt.CompareHashAndPassword(b.hash, []byte(secret)) == nil
}

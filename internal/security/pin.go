package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PINHasher hashes and verifies pickup PINs. Plain PINs are never stored.
type PINHasher struct {
	cost int
}

// NewPINHasher creates a hasher. A cost outside bcrypt's range uses bcrypt.DefaultCost.
func NewPINHasher(cost int) *PINHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PINHasher{cost: cost}
}

// Hash returns the bcrypt hash of pin
func (h *PINHasher) Hash(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether pin matches hash. The comparison is constant-time
// with respect to the stored secret. An empty hash never matches.
func (h *PINHasher) Verify(hash, pin string) bool {
	if hash == "" || pin == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false
	}
	return err == nil
}

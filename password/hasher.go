package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes new passwords with argon2id and verifies both argon2id and
// legacy bcrypt hashes.
type Hasher struct {
	argon *Argon2
}

// NewHasher returns a Hasher using cfg for new hashes.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a}, nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// Hash returns a new argon2id PHC string.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify reports whether password matches encoded.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return h.argon.Verify(password, encoded)
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, ErrMalformedHash
		}
		return true, nil
	case encoded == "":
		return false, ErrMalformedHash
	}
	return false, ErrUnsupportedHash
}

// NeedsUpgrade reports whether encoded should be replaced by a fresh hash:
// any bcrypt hash, or argon2id with weaker parameters than configured.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}
	return h.argon.NeedsUpgrade(encoded)
}

package internal

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// OpaqueTokenBytes is the entropy of email-verification and password-reset
// tokens. Encoded as lowercase hex they are twice as long.
const OpaqueTokenBytes = 32

// NewOpaqueToken returns 32 random bytes as 64 lowercase hex characters.
func NewOpaqueToken() (string, error) {
	var raw [OpaqueTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// ValidOpaqueToken reports whether s has the shape produced by
// NewOpaqueToken. It rejects malformed input before any store lookup.
func ValidOpaqueToken(s string) bool {
	if len(s) != 2*OpaqueTokenBytes {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

package internal

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestOpaqueTokenShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken: %v", err)
		}
		if !ValidOpaqueToken(tok) {
			t.Fatalf("generated token rejected: %q", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestValidOpaqueTokenRejects(t *testing.T) {
	good := strings.Repeat("ab", 32)
	for _, bad := range []string{
		"",
		good[:63],
		good + "a",
		strings.ToUpper(good),
		strings.Repeat("zz", 32),
	} {
		if ValidOpaqueToken(bad) {
			t.Fatalf("accepted %q", bad)
		}
	}
	if !ValidOpaqueToken(good) {
		t.Fatal("rejected well-formed token")
	}
}

func TestSessionIDIsUUID(t *testing.T) {
	if _, err := uuid.Parse(NewSessionID()); err != nil {
		t.Fatalf("session id is not a uuid: %v", err)
	}
}

package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		TTL:           7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		Secret:        testSecret,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := newHSManager(t, clock)

	token, err := m.Issue(Subject{UserID: "u1", Email: "alice@example.com", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UID != "u1" || claims.Email != "alice@example.com" || claims.SessionID() != "s1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 7*24*time.Hour {
		t.Fatalf("expected 7 day lifetime, got %s", got)
	}
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := newHSManager(t, clock)
	token, err := m.Issue(Subject{UserID: "u1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(7*24*time.Hour - time.Second)
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := m.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := newHSManager(t, clock)
	token, err := m.Issue(Subject{UserID: "u1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.Split(token, ".")
	cases := map[string]string{
		"truncated": parts[0] + "." + parts[1],
		"garbage":   "not-a-token",
		"empty":     "",
	}
	for name, tampered := range cases {
		if _, err := m.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", name, err)
		}
	}
}

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// Every position, including the final signature character whose low bits
// are padding, must invalidate the token when changed.
func TestVerifyRejectsAnySingleCharacterChange(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := newHSManager(t, clock)

	for n := 0; n < 20; n++ {
		token, err := m.Issue(Subject{UserID: "u1", SessionID: fmt.Sprintf("s%d", n)})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		for i := 0; i < len(token); i++ {
			idx := strings.IndexByte(base64URLAlphabet, token[i])
			if idx < 0 {
				continue
			}
			for _, delta := range []int{1, 2} {
				repl := base64URLAlphabet[idx^delta]
				tampered := token[:i] + string(repl) + token[i+1:]
				if _, err := m.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
					t.Fatalf("token %d: changing position %d %q -> %q: expected ErrTokenInvalid, got %v",
						n, i, token[i], repl, err)
				}
			}
		}
	}
}

func TestVerifyExpiredWithBadSignatureIsInvalid(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	other, err := NewManager(Config{TTL: time.Minute, Secret: []byte("another-secret-another-secret!!"), Now: clock.Now})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token, _ := other.Issue(Subject{UserID: "u1", SessionID: "s1"})
	clock.Advance(time.Hour)

	if _, err := newHSManager(t, clock).Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("foreign expired token must be invalid, got %v", err)
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := newHSManager(t, clock)

	claims := Claims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "s1",
		IssuedAt:  gjwt.NewNumericDate(clock.now),
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Hour)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for HS512, got %v", err)
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.Verify(none); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for alg=none, got %v", err)
	}
}

func TestEd25519IssuerAudience(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	signer, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "authcore",
		Audience:      "web",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager(signer): %v", err)
	}
	verifier, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodEd25519,
		PublicKey:     pub,
		Issuer:        "authcore",
		Audience:      "web",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager(verifier): %v", err)
	}

	token, err := signer.Issue(Subject{UserID: "u1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(token); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := verifier.Issue(Subject{UserID: "u1", SessionID: "s1"}); err == nil {
		t.Fatal("verify-only manager must not sign")
	}

	otherAudience, _ := NewManager(Config{
		TTL: time.Hour, SigningMethod: MethodEd25519, PublicKey: pub,
		Issuer: "authcore", Audience: "admin", Now: clock.Now,
	})
	if _, err := otherAudience.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("audience mismatch should be invalid, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	bad := []Config{
		{TTL: 0, Secret: testSecret},
		{TTL: time.Hour, Secret: []byte("short")},
		{TTL: time.Hour, Secret: testSecret, Leeway: time.Hour},
		{TTL: time.Hour, SigningMethod: MethodEd25519},
		{TTL: time.Hour, SigningMethod: MethodEd25519, PublicKey: []byte("nope")},
		{TTL: time.Hour, SigningMethod: "rs256", Secret: testSecret},
	}
	for i, cfg := range bad {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestIssueRequiresIdentifiers(t *testing.T) {
	m := newHSManager(t, &fakeClock{now: time.Now()})
	if _, err := m.Issue(Subject{UserID: "u1"}); err == nil {
		t.Fatal("expected error without session id")
	}
}

package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTwoFactorLimiterWindow(t *testing.T) {
	mr, client := newRedis(t)
	l := NewTwoFactor(client, TwoFactorConfig{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if err := l.RecordFailure(ctx, "u1"); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if err := l.Check(ctx, "u1"); err != nil {
			t.Fatalf("check after %d failures: %v", i, err)
		}
	}
	if err := l.RecordFailure(ctx, "u1"); !errors.Is(err, ErrTwoFactorRateLimited) {
		t.Fatalf("third failure should trip the limiter, got %v", err)
	}
	if err := l.Check(ctx, "u1"); !errors.Is(err, ErrTwoFactorRateLimited) {
		t.Fatalf("expected ErrTwoFactorRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "u2"); err != nil {
		t.Fatalf("other principals are unaffected: %v", err)
	}

	if ttl := mr.TTL(twoFactorKeyPrefix + "u1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("window should have expired: %v", err)
	}
}

func TestTwoFactorLimiterRearmsMissingExpiry(t *testing.T) {
	mr, client := newRedis(t)
	l := NewTwoFactor(client, TwoFactorConfig{MaxAttempts: 5, Cooldown: time.Minute})
	key := twoFactorKeyPrefix + "u1"
	if err := mr.Set(key, "2"); err != nil {
		t.Fatal(err)
	}

	if err := l.RecordFailure(context.Background(), "u1"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if got, _ := mr.Get(key); got != "3" {
		t.Fatalf("counter = %q, want 3", got)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expiry not restored, ttl %s", ttl)
	}

	mr.FastForward(30 * time.Second)
	_ = l.RecordFailure(context.Background(), "u1")
	if ttl := mr.TTL(key); ttl > 30*time.Second {
		t.Fatalf("window extended by a later failure, ttl %s", ttl)
	}
}

func TestTwoFactorLimiterReset(t *testing.T) {
	_, client := newRedis(t)
	l := NewTwoFactor(client, TwoFactorConfig{MaxAttempts: 1})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "u1")
	if err := l.Check(ctx, "u1"); !errors.Is(err, ErrTwoFactorRateLimited) {
		t.Fatalf("expected limit, got %v", err)
	}
	if err := l.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("expected clean slate, got %v", err)
	}
}

func TestTwoFactorLimiterUnavailable(t *testing.T) {
	mr, client := newRedis(t)
	l := NewTwoFactor(client, TwoFactorConfig{})
	mr.Close()
	if err := l.Check(context.Background(), "u1"); !errors.Is(err, ErrTwoFactorUnavailable) {
		t.Fatalf("expected ErrTwoFactorUnavailable, got %v", err)
	}
}

func TestNilLimiterIsPermissive(t *testing.T) {
	var l *TwoFactor
	ctx := context.Background()
	if l.Check(ctx, "u") != nil || l.RecordFailure(ctx, "u") != nil || l.Reset(ctx, "u") != nil {
		t.Fatal("nil limiter must be a no-op")
	}
	if NewTwoFactor(nil, TwoFactorConfig{}).Check(ctx, "u") != nil {
		t.Fatal("limiter without client must be a no-op")
	}
}

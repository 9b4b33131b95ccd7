package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTwoFactorMaxAttempts = 5
	defaultTwoFactorCooldown    = 5 * time.Minute
	twoFactorKeyPrefix          = "authcore:2fa:attempts:"
)

var (
	ErrTwoFactorRateLimited = errors.New("two-factor attempts exceeded")
	ErrTwoFactorUnavailable = errors.New("two-factor limiter unavailable")
)

// TwoFactorConfig bounds failed second-factor attempts per principal.
type TwoFactorConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// TwoFactor counts failed TOTP submissions in a fixed window that starts at
// the first failure. It is independent of the password lockout counter.
type TwoFactor struct {
	redis       redis.UniversalClient
	maxAttempts int64
	cooldown    time.Duration
}

// NewTwoFactor returns a limiter. Zero fields in cfg fall back to 5
// attempts per 5 minutes.
func NewTwoFactor(client redis.UniversalClient, cfg TwoFactorConfig) *TwoFactor {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultTwoFactorMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultTwoFactorCooldown
	}
	return &TwoFactor{redis: client, maxAttempts: int64(max), cooldown: cd}
}

func (l *TwoFactor) key(userID string) string {
	return twoFactorKeyPrefix + userID
}

// Check returns ErrTwoFactorRateLimited once the window is exhausted.
func (l *TwoFactor) Check(ctx context.Context, userID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

// recordFailureLua increments the counter and (re)arms its expiry whenever
// the key has none, so a counter can never outlive the window.
var recordFailureLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RecordFailure counts one failed attempt and opens the window on the first.
func (l *TwoFactor) RecordFailure(ctx context.Context, userID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := recordFailureLua.Run(ctx, l.redis, []string{l.key(userID)}, l.cooldown.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrTwoFactorRateLimited
	}
	return nil
}

// Reset clears the counter after a successful attempt.
func (l *TwoFactor) Reset(ctx context.Context, userID string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	return nil
}

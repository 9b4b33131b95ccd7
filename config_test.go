package authcore

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigNeedsSecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config without a secret should not validate")
	}
	cfg.Session.Secret = testSecret
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with secret failed: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.Session.Secret = "short" }, "Secret"},
		{"unknown method", func(c *Config) { c.Session.SigningMethod = "rs256" }, "SigningMethod"},
		{"ed25519 without keys", func(c *Config) { c.Session.SigningMethod = "ed25519" }, "PrivateKey"},
		{"leeway too large", func(c *Config) { c.Session.Leeway = 5 * time.Minute }, "Leeway"},
		{"ttl too short", func(c *Config) { c.Session.TTL = time.Second }, "TTL"},
		{"max below min", func(c *Config) { c.Password.MinLength = 10; c.Password.MaxLength = 8 }, "MaxLength"},
		{"zero threshold", func(c *Config) { c.Lockout.Threshold = 0 }, "Threshold"},
		{"seven digits", func(c *Config) { c.TwoFactor.Digits = 7 }, "Digits"},
		{"bad algorithm", func(c *Config) { c.TwoFactor.Algorithm = "MD5" }, "Algorithm"},
		{"unknown role", func(c *Config) { c.Account.DefaultRole = "root" }, "DefaultRole"},
		{"reset ttl too short", func(c *Config) { c.PasswordReset.TokenTTL = time.Second }, "TTL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Session.Secret = testSecret
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AUTHCORE_SESSION_SECRET", testSecret)
	t.Setenv("AUTHCORE_SESSION_TTL", "2h")
	t.Setenv("AUTHCORE_LOCKOUT_THRESHOLD", "3")
	t.Setenv("AUTHCORE_TWO_FACTOR_ALGORITHM", "SHA256")
	t.Setenv("AUTHCORE_ACCOUNT_DEFAULT_ROLE", "moderator")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.Session.TTL != 2*time.Hour || cfg.Lockout.Threshold != 3 {
		t.Fatalf("environment not applied: %+v", cfg.Session)
	}
	if cfg.TwoFactor.Algorithm != "SHA256" || cfg.Account.DefaultRole != RoleModerator {
		t.Fatalf("unexpected two-factor/account config")
	}
	if cfg.Lockout.Duration != 15*time.Minute {
		t.Fatal("unset variables must keep defaults")
	}
}

func TestConfigFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("AUTHCORE_SESSION_SECRET", testSecret)
	t.Setenv("AUTHCORE_TWO_FACTOR_DIGITS", "9")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected validation error")
	}

	t.Setenv("AUTHCORE_TWO_FACTOR_DIGITS", "six")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected parse error")
	}
}

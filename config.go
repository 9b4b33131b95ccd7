package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/credential"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// EnvPrefix prefixes every variable read by ConfigFromEnv.
const EnvPrefix = "AUTHCORE_"

// Config holds every Engine setting. Start from DefaultConfig and override
// the fields you need; Build validates the result.
type Config struct {
	Session           SessionConfig           `envPrefix:"SESSION_"`
	Password          PasswordConfig          `envPrefix:"PASSWORD_"`
	Lockout           LockoutConfig           `envPrefix:"LOCKOUT_"`
	TwoFactor         TwoFactorConfig         `envPrefix:"TWO_FACTOR_"`
	EmailVerification EmailVerificationConfig `envPrefix:"EMAIL_VERIFICATION_"`
	PasswordReset     PasswordResetConfig     `envPrefix:"PASSWORD_RESET_"`
	Account           AccountConfig           `envPrefix:"ACCOUNT_"`
	Activity          ActivityConfig          `envPrefix:"ACTIVITY_"`
	Metrics           MetricsConfig           `envPrefix:"METRICS_"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session token signing.
type SessionConfig struct {
	TTL           time.Duration     `env:"TTL" validate:"gt=0"`
	SigningMethod jwt.SigningMethod `env:"SIGNING_METHOD" validate:"oneof=hs256 ed25519"`
	// Secret is the HS256 key, at least 16 bytes.
	Secret string `env:"SECRET"`
	// PrivateKey and PublicKey are Ed25519 keys, PEM or raw.
	PrivateKey string        `env:"PRIVATE_KEY"`
	PublicKey  string        `env:"PUBLIC_KEY"`
	Issuer     string        `env:"ISSUER"`
	Audience   string        `env:"AUDIENCE"`
	Leeway     time.Duration `env:"LEEWAY" validate:"gte=0"`
	// TrackSessions records session ids on the credential record so that
	// Logout and RevokeSession invalidate tokens before they expire.
	TrackSessions bool `env:"TRACK_SESSIONS"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls hashing cost and the password policy.
type PasswordConfig struct {
	Argon2    password.Config `envPrefix:"ARGON2_"`
	MinLength int             `env:"MIN_LENGTH" validate:"gte=1"`
	MaxLength int             `env:"MAX_LENGTH" validate:"gtefield=MinLength,lte=1024"`
	// UpgradeOnLogin rehashes legacy or weaker hashes after a successful
	// password login.
	UpgradeOnLogin bool `env:"UPGRADE_ON_LOGIN"`
}

// LockoutConfig controls the failed-password lockout.
type LockoutConfig struct {
	Threshold int           `env:"THRESHOLD" validate:"gte=1"`
	Duration  time.Duration `env:"DURATION" validate:"gt=0"`
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls TOTP parameters and the optional attempt limiter.
type TwoFactorConfig struct {
	Issuer    string `env:"ISSUER" validate:"required"`
	Digits    int    `env:"DIGITS" validate:"oneof=6 8"`
	Period    int    `env:"PERIOD" validate:"gte=15,lte=300"`
	Skew      uint   `env:"SKEW" validate:"lte=3"`
	Algorithm string `env:"ALGORITHM" validate:"oneof=SHA1 SHA256 SHA512"`
	// MaxAttempts and Cooldown bound failed codes per principal. They only
	// apply when the Engine is built with a Redis client.
	MaxAttempts int           `env:"MAX_ATTEMPTS" validate:"gte=1"`
	Cooldown    time.Duration `env:"COOLDOWN" validate:"gt=0"`
}

// EmailVerificationConfig controls verification tokens.
type EmailVerificationConfig struct {
	TokenTTL       time.Duration `env:"TOKEN_TTL" validate:"gt=0"`
	SendOnRegister bool          `env:"SEND_ON_REGISTER"`
}

// PasswordResetConfig controls reset tokens.
type PasswordResetConfig struct {
	TokenTTL time.Duration `env:"TOKEN_TTL" validate:"gt=0"`
}

// AccountConfig controls newly created records.
type AccountConfig struct {
	DefaultRole       credential.Role `env:"DEFAULT_ROLE" validate:"oneof=user moderator admin"`
	UsernameMinLength int             `env:"USERNAME_MIN_LENGTH" validate:"gte=1"`
	UsernameMaxLength int             `env:"USERNAME_MAX_LENGTH" validate:"gtefield=UsernameMinLength,lte=64"`
}

// ActivityConfig controls asynchronous activity event delivery.
type ActivityConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE" validate:"gte=1"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// DefaultConfig returns the production defaults. Session.Secret is empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:           7 * 24 * time.Hour,
			SigningMethod: jwt.MethodHS256,
			Issuer:        "authcore",
			TrackSessions: true,
		},
		Password: PasswordConfig{
			Argon2:         password.DefaultConfig(),
			MinLength:      6,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:      "authcore",
			Digits:      6,
			Period:      30,
			Skew:        1,
			Algorithm:   "SHA1",
			MaxAttempts: 5,
			Cooldown:    5 * time.Minute,
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL:       24 * time.Hour,
			SendOnRegister: true,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		Account: AccountConfig{
			DefaultRole:       credential.RoleUser,
			UsernameMinLength: 3,
			UsernameMaxLength: 20,
		},
		Activity: ActivityConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// ConfigFromEnv overlays AUTHCORE_* environment variables on DefaultConfig,
// for example AUTHCORE_SESSION_SECRET or AUTHCORE_LOCKOUT_THRESHOLD, and
// validates the result.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("config: %w", err)
	}

	switch c.Session.SigningMethod {
	case jwt.MethodHS256:
		if len(c.Session.Secret) < 16 {
			return errors.New("config: Session.Secret must be at least 16 bytes for hs256")
		}
	case jwt.MethodEd25519:
		if c.Session.PrivateKey == "" || c.Session.PublicKey == "" {
			return errors.New("config: Session.PrivateKey and Session.PublicKey are required for ed25519")
		}
	}
	if c.Session.Leeway > 2*time.Minute {
		return errors.New("config: Session.Leeway must not exceed 2m")
	}
	if c.Session.TTL < time.Minute {
		return errors.New("config: Session.TTL must be at least 1m")
	}
	if c.EmailVerification.TokenTTL < time.Minute || c.PasswordReset.TokenTTL < time.Minute {
		return errors.New("config: token TTLs must be at least 1m")
	}
	return nil
}

package authcore

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpSecretBytes is 160 bits, the RFC 4226 recommended HMAC-SHA1 key size.
const totpSecretBytes = 20

type totpService struct {
	config TwoFactorConfig
	opts   totp.ValidateOpts
}

func newTOTPService(cfg TwoFactorConfig) *totpService {
	return &totpService{
		config: cfg,
		opts: totp.ValidateOpts{
			Period:    uint(cfg.Period),
			Skew:      cfg.Skew,
			Digits:    otp.Digits(cfg.Digits),
			Algorithm: totpAlgorithm(cfg.Algorithm),
		},
	}
}

func totpAlgorithm(name string) otp.Algorithm {
	switch strings.ToUpper(name) {
	case "SHA256":
		return otp.AlgorithmSHA256
	case "SHA512":
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}

// Generate creates a fresh secret and its otpauth:// provisioning URI.
func (s *totpService) Generate(account string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: account,
		Period:      s.opts.Period,
		SecretSize:  totpSecretBytes,
		Digits:      s.opts.Digits,
		Algorithm:   s.opts.Algorithm,
	})
	if err != nil {
		return nil, err
	}
	return &TOTPEnrollment{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

// Validate accepts codes from the step containing at and Skew steps either
// side of it.
func (s *totpService) Validate(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != s.config.Digits {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), s.opts)
	return err == nil && ok
}

// Code returns the code for the step containing at.
func (s *totpService) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), s.opts)
}

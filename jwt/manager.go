package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

const minSecretBytes = 16

var (
	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenInvalid is returned for any malformed, tampered or wrongly
	// signed token.
	ErrTokenInvalid = errors.New("session token invalid")
)

// Config configures a Manager.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	// Secret is the HS256 key.
	Secret []byte
	// PrivateKey and PublicKey are Ed25519 keys, raw or PEM encoded. A
	// verify-only manager needs just PublicKey.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Subject identifies the principal and session a token is issued for.
type Subject struct {
	UserID    string
	Email     string
	SessionID string
}

// Claims is the token payload. The session id travels as the registered
// "jti" claim.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionID returns the jti claim.
func (c *Claims) SessionID() string { return c.ID }

// Manager signs and verifies session tokens.
type Manager struct {
	config  Config
	method  jwt.SigningMethod
	signKey any
	verKey  any
}

// NewManager validates cfg and prepares signing keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt: TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be within [0, 2m]")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256, "":
		if len(cfg.Secret) < minSecretBytes {
			return nil, fmt.Errorf("jwt: hs256 secret must be at least %d bytes", minSecretBytes)
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.Secret
		m.verKey = cfg.Secret
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verKey = pub
		}
		if m.verKey == nil {
			return nil, errors.New("jwt: ed25519 requires a public or private key")
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}
	return m, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.config.TTL }

// Issue signs a token for sub, valid for the configured TTL from now.
func (m *Manager) Issue(sub Subject) (string, error) {
	if m.signKey == nil {
		return "", errors.New("jwt: manager has no signing key")
	}
	if sub.UserID == "" || sub.SessionID == "" {
		return "", errors.New("jwt: user id and session id are required")
	}
	now := m.config.Now()
	claims := Claims{
		UID:   sub.UserID,
		Email: sub.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ID:        sub.SessionID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
}

// Verify checks token and returns its claims. It returns ErrTokenExpired
// only for a token whose signature is valid; every other failure is
// ErrTokenInvalid.
func (m *Manager) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	}
	if m.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.config.Audience))
	}

	var claims Claims
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
		}
		return m.verKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	case !parsed.Valid || claims.UID == "" || claims.ID == "":
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}

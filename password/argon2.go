package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2Prefix          = "$argon2id$"
)

var (
	// ErrMalformedHash is returned for encoded hashes that cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrUnsupportedHash is returned for hash formats this package does not verify.
	ErrUnsupportedHash = errors.New("password: unsupported hash format")
)

// Config holds argon2id cost parameters.
type Config struct {
	Memory      uint32 `env:"MEMORY_KB" validate:"gte=8192"`
	Time        uint32 `env:"TIME" validate:"gte=1"`
	Parallelism uint8  `env:"PARALLELISM" validate:"gte=1"`
	SaltLength  uint32 `env:"SALT_LENGTH" validate:"gte=16"`
	KeyLength   uint32 `env:"KEY_LENGTH" validate:"gte=16"`
}

// DefaultConfig returns production argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 produces and checks argon2id PHC strings.
type Argon2 struct {
	config Config
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, fmt.Errorf("password: memory must be >= %d KB", minMemoryKB)
	case cfg.Time < minTimeCost:
		return nil, errors.New("password: time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("password: parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return nil, fmt.Errorf("password: key length must be >= %d", minKeyLength)
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a new salted argon2id hash of password.
func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. The comparison is
// constant time in the length of the derived key.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism ||
		a.config.KeyLength != uint32(len(p.key)), nil
}

func decodeB64(s string) ([]byte, error) {
	// Both padded and unpadded encodings are in circulation.
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedHash
	}
	if parts[1] != "argon2id" {
		return nil, ErrUnsupportedHash
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, ErrMalformedHash
	}
	if version != argon2.Version {
		return nil, ErrUnsupportedHash
	}

	var out phc
	seen := 0
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, ErrMalformedHash
		}
		switch k {
		case "m":
			if n < uint64(minMemoryKB) {
				return nil, ErrMalformedHash
			}
			out.memory = uint32(n)
		case "t":
			if n < uint64(minTimeCost) {
				return nil, ErrMalformedHash
			}
			out.time = uint32(n)
		case "p":
			if n < uint64(minParallelism) || n > 255 {
				return nil, ErrMalformedHash
			}
			out.parallelism = uint8(n)
		default:
			return nil, ErrMalformedHash
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return nil, ErrMalformedHash
	}

	if out.salt, err = decodeB64(parts[4]); err != nil || len(out.salt) < int(minSaltLength) {
		return nil, ErrMalformedHash
	}
	if out.key, err = decodeB64(parts[5]); err != nil || len(out.key) == 0 {
		return nil, ErrMalformedHash
	}
	return &out, nil
}

package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/activity"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, then discard it.
type Builder struct {
	config   Config
	store    Store
	notifier Notifier
	sink     ActivitySink
	logger   *zerolog.Logger
	redis    redis.UniversalClient
	now      func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the outbound message channel. Defaults to NoopNotifier.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithActivitySink enables activity events. Without a sink no events are
// recorded, whatever Config.Activity.Enabled says.
func (b *Builder) WithActivitySink(sink ActivitySink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithLogger(logger *zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRedis enables the two-factor attempt limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithClock overrides time.Now for every expiry and lockout decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	hasher, err := password.NewHasher(cfg.Password.Argon2)
	if err != nil {
		return nil, err
	}
	// Unknown emails are verified against this hash so they cost the same
	// as a wrong password.
	filler, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(filler)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Session.TTL,
		SigningMethod: cfg.Session.SigningMethod,
		Secret:        []byte(cfg.Session.Secret),
		PrivateKey:    []byte(cfg.Session.PrivateKey),
		PublicKey:     []byte(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("session tokens: %w", err)
	}

	e := &Engine{
		config:    cfg,
		store:     b.store,
		hasher:    hasher,
		dummyHash: dummyHash,
		tokens:    tokens,
		totp:      newTOTPService(cfg.TwoFactor),
		notifier:  notifier,
		metrics:   NewMetrics(cfg.Metrics),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With().Str("component", "authcore").Logger(),
		now:       now,
	}

	if b.redis != nil {
		e.limiter = limiters.NewTwoFactor(b.redis, limiters.TwoFactorConfig{
			MaxAttempts: cfg.TwoFactor.MaxAttempts,
			Cooldown:    cfg.TwoFactor.Cooldown,
		})
	}

	if b.sink != nil {
		e.activity = activity.NewDispatcher(activity.Config{
			Enabled:    cfg.Activity.Enabled,
			BufferSize: cfg.Activity.BufferSize,
			DropIfFull: cfg.Activity.DropIfFull,
			OnDrop: func(ev activity.Event) {
				e.metricInc(MetricActivityDropped)
				e.logger.Warn().Str("action", string(ev.Action)).Msg("activity event dropped")
			},
		}, b.sink)
	}

	b.built = true
	return e, nil
}

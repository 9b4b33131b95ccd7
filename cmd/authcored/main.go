// Command authcored serves the authcore HTTP API.
//
// Configuration is read from the environment (and a .env file when present):
// AUTHCORE_* for the engine, AUTHCORED_* for this server, SMTP_* and MAIL_*
// for outbound mail. With no SMTP_HOST, messages are logged and dropped.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/httpapi"
	"github.com/MrEthical07/authcore/mailer"
	otelexport "github.com/MrEthical07/authcore/metrics/export/otel"
	"github.com/MrEthical07/authcore/store/memstore"
	"github.com/MrEthical07/authcore/store/mongostore"
	"github.com/MrEthical07/authcore/store/sqlstore"
	"github.com/caarlos0/env/v11"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel"
	_ "modernc.org/sqlite"
)

type serverConfig struct {
	Addr          string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty     bool   `env:"LOG_PRETTY"`
	Store         string `env:"STORE" envDefault:"memory"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"authcore"`
	RedisURL      string `env:"REDIS_URL"`
}

// activityLog persists activity events and serves them back to their owner.
type activityLog interface {
	authcore.ActivitySink
	authcore.ActivityReader
}

// memoryActivityCapacity bounds activity history for backends without a
// persistent activity log.
const memoryActivityCapacity = 10000

// backend is an open credential store, its activity log and its cleanup.
type backend struct {
	store    authcore.Store
	activity activityLog
	close    func(context.Context) error
}

func main() {
	// best effort: without a .env file the real environment is used
	_ = godotenv.Load()

	var srvCfg serverConfig
	if err := env.ParseWithOptions(&srvCfg, env.Options{Prefix: "AUTHCORED_"}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse server config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(srvCfg)

	if err := run(srvCfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("authcored stopped")
	}
	logger.Info().Msg("goodbye")
}

func newLogger(cfg serverConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "authcored").Logger()
}

func run(srvCfg serverConfig, logger zerolog.Logger) error {
	cfg, err := authcore.ConfigFromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, srvCfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := be.close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	builder := authcore.New().
		WithConfig(cfg).
		WithStore(be.store).
		WithLogger(&logger)

	builder.WithActivitySink(authcore.MultiActivitySink(authcore.NewLogActivitySink(logger), be.activity))

	if srvCfg.RedisURL != "" {
		opts, err := redis.ParseURL(srvCfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		builder.WithRedis(rdb)
		logger.Info().Msg("two-factor attempt limiter enabled")
	}

	if os.Getenv("SMTP_HOST") != "" {
		mailCfg, err := mailer.ConfigFromEnv()
		if err != nil {
			return err
		}
		m, err := mailer.New(mailCfg, logger)
		if err != nil {
			return err
		}
		builder.WithNotifier(m)
	} else {
		logger.Warn().Msg("SMTP_HOST not set; outbound email disabled")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	// Instruments land on the global MeterProvider; a host that installs one
	// collects them, otherwise they are no-ops.
	exporter, err := otelexport.New(otel.Meter("github.com/MrEthical07/authcore"), engine)
	if err != nil {
		return fmt.Errorf("register otel metrics: %w", err)
	}
	defer exporter.Close()

	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           httpapi.NewHandler(engine, logger).WithActivity(be.activity).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srvCfg.Addr).Str("store", srvCfg.Store).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown failed")
	}
	return nil
}

func openBackend(ctx context.Context, cfg serverConfig, logger zerolog.Logger) (*backend, error) {
	switch cfg.Store {
	case "memory":
		return &backend{
			store:    memstore.New(),
			activity: authcore.NewMemoryActivitySink(memoryActivityCapacity),
			close:    func(context.Context) error { return nil },
		}, nil

	case "sqlite", "postgres":
		driver := cfg.Store
		dsn := cfg.DatabaseURL
		if driver == "sqlite" && dsn == "" {
			dsn = "authcore.db"
		}
		if dsn == "" {
			return nil, errors.New("AUTHCORED_DATABASE_URL is required for postgres")
		}
		db, err := sqlx.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", driver, err)
		}
		if driver == "sqlite" {
			db.SetMaxOpenConns(1)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping %s: %w", driver, err)
		}
		s := sqlstore.New(db)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &backend{
			store:    s,
			activity: authcore.NewMemoryActivitySink(memoryActivityCapacity),
			close:    func(context.Context) error { return db.Close() },
		}, nil

	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		db := client.Database(cfg.MongoDatabase)
		s := mongostore.New(db)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		history := mongostore.NewActivitySink(db, &logger)
		if err := history.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &backend{
			store:    s,
			activity: history,
			close:    client.Disconnect,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store %q (want memory, sqlite, postgres or mongo)", cfg.Store)
	}
}

package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/internal/activity"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store/memstore"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
	enabled      map[string]int
	failWith     error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		verification: make(map[string]string),
		reset:        make(map[string]string),
		enabled:      make(map[string]int),
	}
}

func (n *recordingNotifier) SendVerification(_ context.Context, rec *Record, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.verification[rec.Email] = token
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, rec *Record, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.reset[rec.Email] = token
	return nil
}

func (n *recordingNotifier) SendTwoFactorEnabled(_ context.Context, rec *Record) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled[rec.Email]++
	return nil
}

func (n *recordingNotifier) verificationFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verification[email]
}

func (n *recordingNotifier) resetFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reset[email]
}

type testEnv struct {
	engine   *Engine
	store    *memstore.Store
	clock    *testClock
	notifier *recordingNotifier
	events   *activity.ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Secret = testSecret
	cfg.Password.Argon2 = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := newTestClock()
	store := memstore.New().WithClock(clock.Now)
	notifier := newRecordingNotifier()
	events := NewChannelActivitySink(256)

	b := New().
		WithConfig(cfg).
		WithStore(store).
		WithNotifier(notifier).
		WithActivitySink(events).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return &testEnv{engine: engine, store: store, clock: clock, notifier: notifier, events: events}
}

func (env *testEnv) register(t *testing.T, email, username, pw string) *RegisterResult {
	t.Helper()
	res, err := env.engine.Register(context.Background(), RegisterRequest{Email: email, Username: username, Password: pw})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return res
}

// waitForAction reads events until one with action arrives.
func (env *testEnv) waitForAction(t *testing.T, action ActivityAction) ActivityEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-env.events.Events():
			if ev.Action == action {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %q activity event", action)
			return ActivityEvent{}
		}
	}
}

func (env *testEnv) currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := env.engine.totp.Code(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	return code
}

func wantErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

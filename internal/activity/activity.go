package activity

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Action names a recorded account activity.
type Action string

const (
	ActionRegister           Action = "register"
	ActionLogin              Action = "login"
	ActionLogout             Action = "logout"
	ActionPasswordReset      Action = "password_reset"
	ActionEmailVerification  Action = "email_verification"
	ActionTwoFactorEnabled   Action = "2fa_enabled"
	ActionTwoFactorDisabled  Action = "2fa_disabled"
	ActionSessionRevoked     Action = "session_revoked"
	ActionRoleChanged        Action = "role_changed"
	ActionPermissionsChanged Action = "permissions_changed"
)

// Event is one recorded activity.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    Action            `json:"action"`
	UserID    string            `json:"user_id"`
	IP        string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}

// LogSink records events as structured zerolog entries.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event Event) {
	entry := s.logger.Info().
		Str("action", string(event.Action)).
		Str("user_id", event.UserID).
		Time("at", event.Timestamp)
	if event.IP != "" {
		entry = entry.Str("ip", event.IP)
	}
	if event.UserAgent != "" {
		entry = entry.Str("user_agent", event.UserAgent)
	}
	if len(event.Metadata) > 0 {
		dict := zerolog.Dict()
		for k, v := range event.Metadata {
			dict = dict.Str(k, v)
		}
		entry = entry.Dict("metadata", dict)
	}
	entry.Msg("account activity")
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

// Reader returns the newest events recorded for one principal.
type Reader interface {
	Recent(ctx context.Context, userID string, limit int64) ([]Event, error)
}

// MemorySink keeps the last capacity events in memory and serves them
// back through Recent.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemorySink{events: make([]Event, capacity)}
}

func (s *MemorySink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.next] = event
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.full = true
	}
}

// Recent returns up to limit events of userID, newest first.
func (s *MemorySink) Recent(ctx context.Context, userID string, limit int64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	size := s.next
	if s.full {
		size = len(s.events)
	}
	var out []Event
	for i := 1; i <= size && int64(len(out)) < limit; i++ {
		ev := s.events[(s.next-i+len(s.events))%len(s.events)]
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	return out, nil
}

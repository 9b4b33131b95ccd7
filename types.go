package authcore

import (
	"context"
	"io"

	"github.com/MrEthical07/authcore/credential"
	"github.com/MrEthical07/authcore/internal/activity"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
	"github.com/rs/zerolog"
)

type (
	// Record is the stored credential record.
	Record   = credential.Record
	Role     = credential.Role
	Provider = credential.Provider
	// Store persists records through atomic commands.
	Store = credential.Store

	// ActivityEvent is one recorded account activity.
	ActivityEvent  = activity.Event
	ActivityAction = activity.Action
	// ActivitySink receives activity events from the Engine's dispatcher.
	ActivitySink = activity.Sink
	// ActivityReader serves a principal's recent activity.
	ActivityReader = activity.Reader
)

const (
	RoleUser      = credential.RoleUser
	RoleModerator = credential.RoleModerator
	RoleAdmin     = credential.RoleAdmin

	ProviderLocal  = credential.ProviderLocal
	ProviderGoogle = credential.ProviderGoogle
	ProviderGitHub = credential.ProviderGitHub

	ActionRegister           = activity.ActionRegister
	ActionLogin              = activity.ActionLogin
	ActionLogout             = activity.ActionLogout
	ActionPasswordReset      = activity.ActionPasswordReset
	ActionEmailVerification  = activity.ActionEmailVerification
	ActionTwoFactorEnabled   = activity.ActionTwoFactorEnabled
	ActionTwoFactorDisabled  = activity.ActionTwoFactorDisabled
	ActionSessionRevoked     = activity.ActionSessionRevoked
	ActionRoleChanged        = activity.ActionRoleChanged
	ActionPermissionsChanged = activity.ActionPermissionsChanged
)

// NewChannelActivitySink buffers events on a channel, mostly for tests.
func NewChannelActivitySink(buffer int) *activity.ChannelSink {
	return activity.NewChannelSink(buffer)
}

// NewJSONActivitySink writes one JSON object per event to w.
func NewJSONActivitySink(w io.Writer) ActivitySink {
	return activity.NewJSONWriterSink(w)
}

// NewLogActivitySink writes events as structured log lines.
func NewLogActivitySink(logger zerolog.Logger) ActivitySink {
	return activity.NewLogSink(logger)
}

// NewMemoryActivitySink keeps the last capacity events for ActivityReader
// lookups.
func NewMemoryActivitySink(capacity int) *activity.MemorySink {
	return activity.NewMemorySink(capacity)
}

// MultiActivitySink fans every event out to all sinks.
func MultiActivitySink(sinks ...ActivitySink) ActivitySink {
	return activity.MultiSink(sinks)
}

// RegisterRequest is the input of Engine.Register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterResult carries the new record and its first session.
type RegisterResult struct {
	Record       *Record
	SessionToken string
	SessionID    string
}

// LoginRequest is the input of Engine.Login. TwoFactorCode is only read for
// records with two-factor enabled.
type LoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

// LoginResult is either a completed login (Record and SessionToken set) or a
// second-factor challenge (TwoFactorRequired set, nothing else).
type LoginResult struct {
	Record            *Record
	SessionToken      string
	SessionID         string
	TwoFactorRequired bool
}

// Principal is an authenticated caller resolved from a session token.
type Principal struct {
	Record    *Record
	SessionID string
	Claims    *jwt.Claims
}

// Identity returns the authorization view of p.
func (p *Principal) Identity() permission.Identity {
	if p == nil {
		return permission.Identity{}
	}
	return permission.IdentityOf(p.Record)
}

// TOTPEnrollment is returned once, at enrollment time.
type TOTPEnrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioningUri"`
}

// ExternalIdentity is an identity asserted by an upstream provider after its
// own handshake completed.
type ExternalIdentity struct {
	Provider    Provider
	ExternalID  string
	Email       string
	DisplayName string
}

// Notifier delivers out-of-band messages. Tokens are passed in clear and
// must only be embedded in the message sent to rec.Email.
type Notifier interface {
	SendVerification(ctx context.Context, rec *Record, token string) error
	SendPasswordReset(ctx context.Context, rec *Record, token string) error
	SendTwoFactorEnabled(ctx context.Context, rec *Record) error
}

// NoopNotifier discards every message.
type NoopNotifier struct{}

func (NoopNotifier) SendVerification(context.Context, *Record, string) error  { return nil }
func (NoopNotifier) SendPasswordReset(context.Context, *Record, string) error { return nil }
func (NoopNotifier) SendTwoFactorEnabled(context.Context, *Record) error      { return nil }

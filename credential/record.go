package credential

import (
	"slices"
	"strings"
	"time"
)

// Provider identifies how a principal authenticates.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGoogle, ProviderGitHub:
		return true
	}
	return false
}

// External reports whether p is an external identity provider.
func (p Provider) External() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// Role is the coarse authorization role of a principal.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is part of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Record is the persisted credential state of one principal.
type Record struct {
	ID       string
	Email    string
	Username string

	// PasswordHash is empty for principals that only authenticate through an
	// external provider.
	PasswordHash string

	Provider    Provider
	ExternalIDs map[Provider]string

	EmailVerified            bool
	EmailVerificationToken   string
	EmailVerificationExpires *time.Time

	PasswordResetToken   string
	PasswordResetExpires *time.Time

	// TwoFactorSecret holds the pending secret between enrollment and
	// confirmation, and the active secret once TwoFactorEnabled is set.
	TwoFactorEnabled bool
	TwoFactorSecret  string

	Role        Role
	Permissions []string

	FailedLoginCount int
	LockedUntil      *time.Time
	LastLogin        *time.Time

	ActiveSessionIDs []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether a lockout is active at now.
func (r *Record) Locked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// HasPassword reports whether the record can authenticate with a local
// password.
func (r *Record) HasPassword() bool {
	return r.PasswordHash != ""
}

// HasSession reports whether sessionID is in the active session set.
func (r *Record) HasSession(sessionID string) bool {
	return slices.Contains(r.ActiveSessionIDs, sessionID)
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.ExternalIDs != nil {
		out.ExternalIDs = make(map[Provider]string, len(r.ExternalIDs))
		for k, v := range r.ExternalIDs {
			out.ExternalIDs[k] = v
		}
	}
	out.Permissions = slices.Clone(r.Permissions)
	out.ActiveSessionIDs = slices.Clone(r.ActiveSessionIDs)
	out.EmailVerificationExpires = cloneTime(r.EmailVerificationExpires)
	out.PasswordResetExpires = cloneTime(r.PasswordResetExpires)
	out.LockedUntil = cloneTime(r.LockedUntil)
	out.LastLogin = cloneTime(r.LastLogin)
	return &out
}

// Redacted returns a copy of r with the password hash, the two-factor secret
// and both single-use tokens removed.
func (r *Record) Redacted() *Record {
	out := r.Clone()
	if out == nil {
		return nil
	}
	out.PasswordHash = ""
	out.TwoFactorSecret = ""
	out.EmailVerificationToken = ""
	out.PasswordResetToken = ""
	return out
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePermissions trims, drops empty entries and removes duplicates
// while preserving first-seen order.
func NormalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

package credential

import (
	"context"
	"time"
)

// LockoutPolicy carries the parameters of one failed-login registration.
type LockoutPolicy struct {
	// Threshold is the failure count at which the record becomes locked.
	Threshold int
	// Until is the absolute lock deadline applied when Threshold is reached.
	Until time.Time
	// Now is the evaluation instant used to decide whether a lock is active.
	Now time.Time
}

// Store is the persistence contract for credential records.
//
// Lookups return ErrNotFound when nothing matches. Transient backend errors
// are returned wrapped and are never retried by callers.
type Store interface {
	// Create inserts rec and returns the stored record with its assigned ID.
	// Uniqueness of email, username and external IDs is enforced with
	// ErrDuplicateEmail, ErrDuplicateUsername and ErrDuplicateExternalID.
	Create(ctx context.Context, rec *Record) (*Record, error)

	FindByID(ctx context.Context, id string) (*Record, error)
	FindByEmail(ctx context.Context, email string) (*Record, error)
	FindByUsername(ctx context.Context, username string) (*Record, error)
	FindByExternalID(ctx context.Context, provider Provider, externalID string) (*Record, error)

	// RegisterFailedLogin increments the failure counter of an unlocked
	// record and locks it once the counter reaches policy.Threshold. It
	// returns ErrLocked without mutating when a lock is active at policy.Now.
	RegisterFailedLogin(ctx context.Context, id string, policy LockoutPolicy) (*Record, error)

	// RecordSuccessfulLogin resets the failure counter, clears any expired
	// lock, stamps the last login and adds sessionID to the active set when
	// it is not empty. It returns ErrLocked when a lock is active at now.
	RecordSuccessfulLogin(ctx context.Context, id, sessionID string, now time.Time) (*Record, error)

	AddSession(ctx context.Context, id, sessionID string) error
	// RemoveSession is idempotent and returns nil for an unknown record.
	RemoveSession(ctx context.Context, id, sessionID string) error

	SetEmailVerificationToken(ctx context.Context, id, token string, expires time.Time) error
	// ConsumeEmailVerificationToken marks the matching unexpired record as
	// verified and clears the token in the same update. It returns
	// ErrNotFound when the token is unknown, expired or already consumed.
	ConsumeEmailVerificationToken(ctx context.Context, token string, now time.Time) (*Record, error)

	SetPasswordResetToken(ctx context.Context, id, token string, expires time.Time) error
	// ConsumePasswordResetToken replaces the password hash of the matching
	// unexpired record and clears the token in the same update.
	ConsumePasswordResetToken(ctx context.Context, token, newHash string, now time.Time) (*Record, error)

	// SetPendingTwoFactorSecret stores secret while two-factor is disabled.
	SetPendingTwoFactorSecret(ctx context.Context, id, secret string) error
	// EnableTwoFactor activates two-factor only if the pending secret still
	// equals secret, otherwise ErrConflict.
	EnableTwoFactor(ctx context.Context, id, secret string) error
	DisableTwoFactor(ctx context.Context, id string) error

	// LinkExternalIdentity binds provider/externalID to the record, switches
	// its provider and marks the email verified.
	LinkExternalIdentity(ctx context.Context, id string, provider Provider, externalID string) (*Record, error)

	// UpdatePasswordHash swaps oldHash for newHash, or ErrConflict when the
	// stored hash changed in the meantime.
	UpdatePasswordHash(ctx context.Context, id, oldHash, newHash string) error
	UpdateRole(ctx context.Context, id string, role Role) error
	SetPermissions(ctx context.Context, id string, permissions []string) error
}

package credential

import "errors"

var (
	// ErrNotFound is returned when no record matches a lookup or a
	// conditional update found nothing to update.
	ErrNotFound = errors.New("credential: record not found")
	// ErrDuplicateEmail is returned by Create when the email is taken.
	ErrDuplicateEmail = errors.New("credential: email already registered")
	// ErrDuplicateUsername is returned by Create when the username is taken.
	ErrDuplicateUsername = errors.New("credential: username already taken")
	// ErrDuplicateExternalID is returned when an external identity is
	// already bound to another record.
	ErrDuplicateExternalID = errors.New("credential: external identity already linked")
	// ErrLocked is returned by login bookkeeping when a lockout is active at
	// write time.
	ErrLocked = errors.New("credential: record locked")
	// ErrTwoFactorEnabled is returned when a pending secret would overwrite
	// an active one.
	ErrTwoFactorEnabled = errors.New("credential: two-factor already enabled")
	// ErrConflict is returned when a compare-and-swap precondition no longer
	// holds.
	ErrConflict = errors.New("credential: concurrent modification")
)

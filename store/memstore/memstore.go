// Package memstore is an in-process credential.Store guarded by a single
// mutex. It is used by tests and by single-node deployments that do not need
// durability.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/credential"
	"github.com/google/uuid"
)

type externalKey struct {
	provider credential.Provider
	id       string
}

// Store implements credential.Store in memory.
type Store struct {
	mu sync.Mutex

	now func() time.Time

	byID       map[string]*credential.Record
	byEmail    map[string]string
	byUsername map[string]string
	byExternal map[externalKey]string
}

var _ credential.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:        time.Now,
		byID:       make(map[string]*credential.Record),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		byExternal: make(map[externalKey]string),
	}
}

// WithClock overrides the clock used for CreatedAt/UpdatedAt stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
	return s
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Store) Create(ctx context.Context, rec *credential.Record) (*credential.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[rec.Email]; ok {
		return nil, credential.ErrDuplicateEmail
	}
	if _, ok := s.byUsername[rec.Username]; ok {
		return nil, credential.ErrDuplicateUsername
	}
	for p, id := range rec.ExternalIDs {
		if _, ok := s.byExternal[externalKey{p, id}]; ok {
			return nil, credential.ErrDuplicateExternalID
		}
	}

	stored := rec.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.byID[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	s.byUsername[stored.Username] = stored.ID
	for p, id := range stored.ExternalIDs {
		s.byExternal[externalKey{p, id}] = stored.ID
	}
	return stored.Clone(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*credential.Record, error) {
	return s.find(ctx, func() (string, bool) { return id, true })
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*credential.Record, error) {
	return s.find(ctx, func() (string, bool) {
		id, ok := s.byEmail[email]
		return id, ok
	})
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*credential.Record, error) {
	return s.find(ctx, func() (string, bool) {
		id, ok := s.byUsername[username]
		return id, ok
	})
}

func (s *Store) FindByExternalID(ctx context.Context, provider credential.Provider, externalID string) (*credential.Record, error) {
	return s.find(ctx, func() (string, bool) {
		id, ok := s.byExternal[externalKey{provider, externalID}]
		return id, ok
	})
}

func (s *Store) find(ctx context.Context, resolve func() (string, bool)) (*credential.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := resolve()
	if !ok {
		return nil, credential.ErrNotFound
	}
	rec, ok := s.byID[id]
	if !ok {
		return nil, credential.ErrNotFound
	}
	return rec.Clone(), nil
}

// update runs fn on the stored record under the lock. fn mutates in place.
func (s *Store) update(ctx context.Context, id string, fn func(rec *credential.Record) error) (*credential.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, credential.ErrNotFound
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = s.now()
	return rec.Clone(), nil
}

func (s *Store) RegisterFailedLogin(ctx context.Context, id string, policy credential.LockoutPolicy) (*credential.Record, error) {
	return s.update(ctx, id, func(rec *credential.Record) error {
		if rec.Locked(policy.Now) {
			return credential.ErrLocked
		}
		rec.FailedLoginCount++
		if rec.FailedLoginCount >= policy.Threshold {
			until := policy.Until
			rec.LockedUntil = &until
		}
		return nil
	})
}

func (s *Store) RecordSuccessfulLogin(ctx context.Context, id, sessionID string, now time.Time) (*credential.Record, error) {
	return s.update(ctx, id, func(rec *credential.Record) error {
		if rec.Locked(now) {
			return credential.ErrLocked
		}
		rec.FailedLoginCount = 0
		rec.LockedUntil = nil
		at := now
		rec.LastLogin = &at
		if sessionID != "" && !rec.HasSession(sessionID) {
			rec.ActiveSessionIDs = append(rec.ActiveSessionIDs, sessionID)
		}
		return nil
	})
}

func (s *Store) AddSession(ctx context.Context, id, sessionID string) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		if !rec.HasSession(sessionID) {
			rec.ActiveSessionIDs = append(rec.ActiveSessionIDs, sessionID)
		}
		return nil
	})
	return err
}

func (s *Store) RemoveSession(ctx context.Context, id, sessionID string) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		rec.ActiveSessionIDs = slices.DeleteFunc(rec.ActiveSessionIDs, func(v string) bool { return v == sessionID })
		return nil
	})
	if errors.Is(err, credential.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Store) SetEmailVerificationToken(ctx context.Context, id, token string, expires time.Time) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		rec.EmailVerificationToken = token
		rec.EmailVerificationExpires = &expires
		return nil
	})
	return err
}

func (s *Store) ConsumeEmailVerificationToken(ctx context.Context, token string, now time.Time) (*credential.Record, error) {
	return s.consume(ctx, token, now,
		func(rec *credential.Record) (string, *time.Time) {
			return rec.EmailVerificationToken, rec.EmailVerificationExpires
		},
		func(rec *credential.Record) {
			rec.EmailVerified = true
			rec.EmailVerificationToken = ""
			rec.EmailVerificationExpires = nil
		})
}

func (s *Store) SetPasswordResetToken(ctx context.Context, id, token string, expires time.Time) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		rec.PasswordResetToken = token
		rec.PasswordResetExpires = &expires
		return nil
	})
	return err
}

func (s *Store) ConsumePasswordResetToken(ctx context.Context, token, newHash string, now time.Time) (*credential.Record, error) {
	return s.consume(ctx, token, now,
		func(rec *credential.Record) (string, *time.Time) {
			return rec.PasswordResetToken, rec.PasswordResetExpires
		},
		func(rec *credential.Record) {
			rec.PasswordHash = newHash
			rec.PasswordResetToken = ""
			rec.PasswordResetExpires = nil
		})
}

func (s *Store) consume(
	ctx context.Context,
	token string,
	now time.Time,
	field func(*credential.Record) (string, *time.Time),
	apply func(*credential.Record),
) (*credential.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, credential.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.byID {
		stored, expires := field(rec)
		if stored != token {
			continue
		}
		if expires == nil || !now.Before(*expires) {
			return nil, credential.ErrNotFound
		}
		apply(rec)
		rec.UpdatedAt = s.now()
		return rec.Clone(), nil
	}
	return nil, credential.ErrNotFound
}

func (s *Store) SetPendingTwoFactorSecret(ctx context.Context, id, secret string) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		if rec.TwoFactorEnabled {
			return credential.ErrTwoFactorEnabled
		}
		rec.TwoFactorSecret = secret
		return nil
	})
	return err
}

func (s *Store) EnableTwoFactor(ctx context.Context, id, secret string) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		if rec.TwoFactorEnabled || rec.TwoFactorSecret == "" || rec.TwoFactorSecret != secret {
			return credential.ErrConflict
		}
		rec.TwoFactorEnabled = true
		return nil
	})
	return err
}

func (s *Store) DisableTwoFactor(ctx context.Context, id string) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		rec.TwoFactorEnabled = false
		rec.TwoFactorSecret = ""
		return nil
	})
	return err
}

func (s *Store) LinkExternalIdentity(ctx context.Context, id string, provider credential.Provider, externalID string) (*credential.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, credential.ErrNotFound
	}
	key := externalKey{provider, externalID}
	if owner, taken := s.byExternal[key]; taken && owner != id {
		return nil, credential.ErrDuplicateExternalID
	}
	if prev, ok := rec.ExternalIDs[provider]; ok {
		delete(s.byExternal, externalKey{provider, prev})
	}
	if rec.ExternalIDs == nil {
		rec.ExternalIDs = make(map[credential.Provider]string)
	}
	rec.ExternalIDs[provider] = externalID
	rec.Provider = provider
	rec.EmailVerified = true
	rec.UpdatedAt = s.now()
	s.byExternal[key] = id
	return rec.Clone(), nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, oldHash, newHash string) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		if rec.PasswordHash != oldHash {
			return credential.ErrConflict
		}
		rec.PasswordHash = newHash
		return nil
	})
	return err
}

func (s *Store) UpdateRole(ctx context.Context, id string, role credential.Role) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		rec.Role = role
		return nil
	})
	return err
}

func (s *Store) SetPermissions(ctx context.Context, id string, permissions []string) error {
	_, err := s.update(ctx, id, func(rec *credential.Record) error {
		rec.Permissions = slices.Clone(permissions)
		return nil
	})
	return err
}

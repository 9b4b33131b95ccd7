// Package sqlstore implements credential.Store on top of database/sql via
// sqlx. The schema and queries are portable between PostgreSQL (lib/pq) and
// SQLite (modernc.org/sqlite); placeholders are written as '?' and rebound
// for the connected driver.
//
// Every intent is a single conditional UPDATE (with RETURNING where the
// caller needs the post-update state), so concurrent requests against the
// same row are serialised by the database.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/credential"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS credentials (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL DEFAULT '',
  provider TEXT NOT NULL,
  email_verified BOOLEAN NOT NULL DEFAULT FALSE,
  email_verification_token TEXT NOT NULL DEFAULT '',
  email_verification_expires BIGINT,
  password_reset_token TEXT NOT NULL DEFAULT '',
  password_reset_expires BIGINT,
  two_factor_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  two_factor_secret TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL,
  permissions TEXT NOT NULL DEFAULT '[]',
  failed_login_count INTEGER NOT NULL DEFAULT 0,
  locked_until BIGINT,
  last_login BIGINT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_credentials_verification_token ON credentials(email_verification_token)`,
	`CREATE INDEX IF NOT EXISTS idx_credentials_reset_token ON credentials(password_reset_token)`,
	`CREATE TABLE IF NOT EXISTS credential_identities (
  provider TEXT NOT NULL,
  external_id TEXT NOT NULL,
  credential_id TEXT NOT NULL REFERENCES credentials(id) ON DELETE CASCADE,
  PRIMARY KEY (provider, external_id),
  UNIQUE (credential_id, provider)
)`,
	`CREATE TABLE IF NOT EXISTS credential_sessions (
  credential_id TEXT NOT NULL REFERENCES credentials(id) ON DELETE CASCADE,
  session_id TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  PRIMARY KEY (credential_id, session_id)
)`,
}

const selectColumns = `id, email, username, password_hash, provider, email_verified,
  email_verification_token, email_verification_expires, password_reset_token, password_reset_expires,
  two_factor_enabled, two_factor_secret, role, permissions, failed_login_count, locked_until,
  last_login, created_at, updated_at`

type credentialRow struct {
	ID                       string        `db:"id"`
	Email                    string        `db:"email"`
	Username                 string        `db:"username"`
	PasswordHash             string        `db:"password_hash"`
	Provider                 string        `db:"provider"`
	EmailVerified            bool          `db:"email_verified"`
	EmailVerificationToken   string        `db:"email_verification_token"`
	EmailVerificationExpires sql.NullInt64 `db:"email_verification_expires"`
	PasswordResetToken       string        `db:"password_reset_token"`
	PasswordResetExpires     sql.NullInt64 `db:"password_reset_expires"`
	TwoFactorEnabled         bool          `db:"two_factor_enabled"`
	TwoFactorSecret          string        `db:"two_factor_secret"`
	Role                     string        `db:"role"`
	Permissions              string        `db:"permissions"`
	FailedLoginCount         int           `db:"failed_login_count"`
	LockedUntil              sql.NullInt64 `db:"locked_until"`
	LastLogin                sql.NullInt64 `db:"last_login"`
	CreatedAt                int64         `db:"created_at"`
	UpdatedAt                int64         `db:"updated_at"`
}

type identityRow struct {
	Provider   string `db:"provider"`
	ExternalID string `db:"external_id"`
}

// Store implements credential.Store for SQL databases.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ credential.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock overrides the clock used for created/updated stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Migrate creates the tables and indexes when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func (s *Store) Create(ctx context.Context, rec *credential.Record) (*credential.Record, error) {
	perms, err := json.Marshal(nonNil(rec.Permissions))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode permissions: %w", err)
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := millis(s.now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer tx.Rollback()

	var taken []struct {
		Email    string `db:"email"`
		Username string `db:"username"`
	}
	if err := tx.SelectContext(ctx, &taken, s.q(`SELECT email, username FROM credentials WHERE email = ? OR username = ?`), rec.Email, rec.Username); err != nil {
		return nil, fmt.Errorf("sqlstore: existence check: %w", err)
	}
	for _, row := range taken {
		if row.Email == rec.Email {
			return nil, credential.ErrDuplicateEmail
		}
	}
	if len(taken) > 0 {
		return nil, credential.ErrDuplicateUsername
	}
	for p, ext := range rec.ExternalIDs {
		var n int
		if err := tx.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM credential_identities WHERE provider = ? AND external_id = ?`), string(p), ext); err != nil {
			return nil, fmt.Errorf("sqlstore: identity check: %w", err)
		}
		if n > 0 {
			return nil, credential.ErrDuplicateExternalID
		}
	}

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO credentials (
  id, email, username, password_hash, provider, email_verified,
  email_verification_token, email_verification_expires, password_reset_token, password_reset_expires,
  two_factor_enabled, two_factor_secret, role, permissions, failed_login_count, locked_until,
  last_login, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, rec.Email, rec.Username, rec.PasswordHash, string(rec.Provider), rec.EmailVerified,
		rec.EmailVerificationToken, nullMillis(rec.EmailVerificationExpires), rec.PasswordResetToken, nullMillis(rec.PasswordResetExpires),
		rec.TwoFactorEnabled, rec.TwoFactorSecret, string(rec.Role), string(perms), rec.FailedLoginCount, nullMillis(rec.LockedUntil),
		nullMillis(rec.LastLogin), now, now,
	)
	if err != nil {
		return nil, classifyUnique(err)
	}
	for p, ext := range rec.ExternalIDs {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO credential_identities (provider, external_id, credential_id) VALUES (?, ?, ?)`), string(p), ext, id); err != nil {
			return nil, classifyUnique(err)
		}
	}
	for _, sid := range rec.ActiveSessionIDs {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO credential_sessions (credential_id, session_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`), id, sid, now); err != nil {
			return nil, fmt.Errorf("sqlstore: insert session: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, classifyUnique(err)
	}
	return s.load(ctx, s.db, `id = ?`, id)
}

// classifyUnique maps unique-constraint violations from either driver to the
// credential sentinels.
func classifyUnique(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return fmt.Errorf("sqlstore: write: %w", err)
	}
	switch {
	case strings.Contains(msg, "credential_identities"):
		return credential.ErrDuplicateExternalID
	case strings.Contains(msg, "username"):
		return credential.ErrDuplicateUsername
	case strings.Contains(msg, "email"):
		return credential.ErrDuplicateEmail
	}
	return fmt.Errorf("sqlstore: write: %w", err)
}

func (s *Store) FindByID(ctx context.Context, id string) (*credential.Record, error) {
	return s.load(ctx, s.db, `id = ?`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*credential.Record, error) {
	return s.load(ctx, s.db, `email = ?`, email)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*credential.Record, error) {
	return s.load(ctx, s.db, `username = ?`, username)
}

func (s *Store) FindByExternalID(ctx context.Context, provider credential.Provider, externalID string) (*credential.Record, error) {
	return s.load(ctx, s.db,
		`id = (SELECT credential_id FROM credential_identities WHERE provider = ? AND external_id = ?)`,
		string(provider), externalID)
}

func (s *Store) load(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (*credential.Record, error) {
	var row credentialRow
	err := sqlx.GetContext(ctx, q, &row, s.q(`SELECT `+selectColumns+` FROM credentials WHERE `+where), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: select: %w", err)
	}

	var identities []identityRow
	if err := sqlx.SelectContext(ctx, q, &identities, s.q(`SELECT provider, external_id FROM credential_identities WHERE credential_id = ?`), row.ID); err != nil {
		return nil, fmt.Errorf("sqlstore: select identities: %w", err)
	}
	var sessions []string
	if err := sqlx.SelectContext(ctx, q, &sessions, s.q(`SELECT session_id FROM credential_sessions WHERE credential_id = ? ORDER BY created_at, session_id`), row.ID); err != nil {
		return nil, fmt.Errorf("sqlstore: select sessions: %w", err)
	}
	return row.record(identities, sessions)
}

func (r *credentialRow) record(identities []identityRow, sessions []string) (*credential.Record, error) {
	var perms []string
	if err := json.Unmarshal([]byte(r.Permissions), &perms); err != nil {
		return nil, fmt.Errorf("sqlstore: decode permissions: %w", err)
	}
	rec := &credential.Record{
		ID:                       r.ID,
		Email:                    r.Email,
		Username:                 r.Username,
		PasswordHash:             r.PasswordHash,
		Provider:                 credential.Provider(r.Provider),
		EmailVerified:            r.EmailVerified,
		EmailVerificationToken:   r.EmailVerificationToken,
		EmailVerificationExpires: fromMillis(r.EmailVerificationExpires),
		PasswordResetToken:       r.PasswordResetToken,
		PasswordResetExpires:     fromMillis(r.PasswordResetExpires),
		TwoFactorEnabled:         r.TwoFactorEnabled,
		TwoFactorSecret:          r.TwoFactorSecret,
		Role:                     credential.Role(r.Role),
		Permissions:              nonNil(perms),
		FailedLoginCount:         r.FailedLoginCount,
		LockedUntil:              fromMillis(r.LockedUntil),
		LastLogin:                fromMillis(r.LastLogin),
		ActiveSessionIDs:         sessions,
		CreatedAt:                time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:                time.UnixMilli(r.UpdatedAt).UTC(),
	}
	if len(identities) > 0 {
		rec.ExternalIDs = make(map[credential.Provider]string, len(identities))
		for _, id := range identities {
			rec.ExternalIDs[credential.Provider(id.Provider)] = id.ExternalID
		}
	}
	return rec, nil
}

// exists distinguishes a missing row from a failed precondition after an
// UPDATE matched nothing.
func (s *Store) exists(ctx context.Context, q sqlx.QueryerContext, id string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, s.q(`SELECT COUNT(*) FROM credentials WHERE id = ?`), id); err != nil {
		return false, fmt.Errorf("sqlstore: select: %w", err)
	}
	return n > 0, nil
}

// exec runs a single-row conditional update. When nothing matched it returns
// ErrNotFound for a missing row and onMiss otherwise.
func (s *Store) exec(ctx context.Context, id string, onMiss error, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("sqlstore: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	ok, err := s.exists(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !ok || onMiss == nil {
		return credential.ErrNotFound
	}
	return onMiss
}

func (s *Store) RegisterFailedLogin(ctx context.Context, id string, policy credential.LockoutPolicy) (*credential.Record, error) {
	var out struct {
		FailedLoginCount int           `db:"failed_login_count"`
		LockedUntil      sql.NullInt64 `db:"locked_until"`
	}
	err := s.db.GetContext(ctx, &out, s.q(`UPDATE credentials SET
  failed_login_count = failed_login_count + 1,
  locked_until = CASE WHEN failed_login_count + 1 >= ? THEN ? ELSE locked_until END,
  updated_at = ?
WHERE id = ? AND (locked_until IS NULL OR locked_until <= ?)
RETURNING failed_login_count, locked_until`),
		policy.Threshold, millis(policy.Until), millis(s.now()), id, millis(policy.Now))
	if errors.Is(err, sql.ErrNoRows) {
		ok, existsErr := s.exists(ctx, s.db, id)
		if existsErr != nil {
			return nil, existsErr
		}
		if !ok {
			return nil, credential.ErrNotFound
		}
		return nil, credential.ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: register failed login: %w", err)
	}
	rec, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.FailedLoginCount = out.FailedLoginCount
	rec.LockedUntil = fromMillis(out.LockedUntil)
	return rec, nil
}

func (s *Store) RecordSuccessfulLogin(ctx context.Context, id, sessionID string, now time.Time) (*credential.Record, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`UPDATE credentials SET
  failed_login_count = 0, locked_until = NULL, last_login = ?, updated_at = ?
WHERE id = ? AND (locked_until IS NULL OR locked_until <= ?)`),
		millis(now), millis(s.now()), id, millis(now))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: record login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		ok, err := s.exists(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, credential.ErrNotFound
		}
		return nil, credential.ErrLocked
	}
	if sessionID != "" {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO credential_sessions (credential_id, session_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`), id, sessionID, millis(now)); err != nil {
			return nil, fmt.Errorf("sqlstore: insert session: %w", err)
		}
	}
	rec, err := s.load(ctx, tx, `id = ?`, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlstore: commit: %w", err)
	}
	return rec, nil
}

func (s *Store) AddSession(ctx context.Context, id, sessionID string) error {
	ok, err := s.exists(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !ok {
		return credential.ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO credential_sessions (credential_id, session_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`), id, sessionID, millis(s.now())); err != nil {
		return fmt.Errorf("sqlstore: insert session: %w", err)
	}
	return nil
}

func (s *Store) RemoveSession(ctx context.Context, id, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM credential_sessions WHERE credential_id = ? AND session_id = ?`), id, sessionID); err != nil {
		return fmt.Errorf("sqlstore: delete session: %w", err)
	}
	return nil
}

func (s *Store) SetEmailVerificationToken(ctx context.Context, id, token string, expires time.Time) error {
	return s.exec(ctx, id, nil,
		`UPDATE credentials SET email_verification_token = ?, email_verification_expires = ?, updated_at = ? WHERE id = ?`,
		token, millis(expires), millis(s.now()), id)
}

func (s *Store) ConsumeEmailVerificationToken(ctx context.Context, token string, now time.Time) (*credential.Record, error) {
	if token == "" {
		return nil, credential.ErrNotFound
	}
	return s.consume(ctx, `UPDATE credentials SET
  email_verified = ?, email_verification_token = '', email_verification_expires = NULL, updated_at = ?
WHERE email_verification_token = ? AND email_verification_expires > ?
RETURNING id`, true, millis(s.now()), token, millis(now))
}

func (s *Store) SetPasswordResetToken(ctx context.Context, id, token string, expires time.Time) error {
	return s.exec(ctx, id, nil,
		`UPDATE credentials SET password_reset_token = ?, password_reset_expires = ?, updated_at = ? WHERE id = ?`,
		token, millis(expires), millis(s.now()), id)
}

func (s *Store) ConsumePasswordResetToken(ctx context.Context, token, newHash string, now time.Time) (*credential.Record, error) {
	if token == "" {
		return nil, credential.ErrNotFound
	}
	return s.consume(ctx, `UPDATE credentials SET
  password_hash = ?, password_reset_token = '', password_reset_expires = NULL, updated_at = ?
WHERE password_reset_token = ? AND password_reset_expires > ?
RETURNING id`, newHash, millis(s.now()), token, millis(now))
}

func (s *Store) consume(ctx context.Context, query string, args ...any) (*credential.Record, error) {
	var id string
	err := s.db.GetContext(ctx, &id, s.q(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credential.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: consume token: %w", err)
	}
	return s.FindByID(ctx, id)
}

func (s *Store) SetPendingTwoFactorSecret(ctx context.Context, id, secret string) error {
	return s.exec(ctx, id, credential.ErrTwoFactorEnabled,
		`UPDATE credentials SET two_factor_secret = ?, updated_at = ? WHERE id = ? AND two_factor_enabled = ?`,
		secret, millis(s.now()), id, false)
}

func (s *Store) EnableTwoFactor(ctx context.Context, id, secret string) error {
	return s.exec(ctx, id, credential.ErrConflict,
		`UPDATE credentials SET two_factor_enabled = ?, updated_at = ?
WHERE id = ? AND two_factor_enabled = ? AND two_factor_secret <> '' AND two_factor_secret = ?`,
		true, millis(s.now()), id, false, secret)
}

func (s *Store) DisableTwoFactor(ctx context.Context, id string) error {
	return s.exec(ctx, id, nil,
		`UPDATE credentials SET two_factor_enabled = ?, two_factor_secret = '', updated_at = ? WHERE id = ?`,
		false, millis(s.now()), id)
}

func (s *Store) LinkExternalIdentity(ctx context.Context, id string, provider credential.Provider, externalID string) (*credential.Record, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer tx.Rollback()

	ok, err := s.exists(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, credential.ErrNotFound
	}
	var owner string
	err = tx.GetContext(ctx, &owner, s.q(`SELECT credential_id FROM credential_identities WHERE provider = ? AND external_id = ?`), string(provider), externalID)
	switch {
	case err == nil && owner != id:
		return nil, credential.ErrDuplicateExternalID
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("sqlstore: select identity: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM credential_identities WHERE credential_id = ? AND provider = ?`), id, string(provider)); err != nil {
		return nil, fmt.Errorf("sqlstore: delete identity: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO credential_identities (provider, external_id, credential_id) VALUES (?, ?, ?)`), string(provider), externalID, id); err != nil {
		return nil, classifyUnique(err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE credentials SET provider = ?, email_verified = ?, updated_at = ? WHERE id = ?`), string(provider), true, millis(s.now()), id); err != nil {
		return nil, fmt.Errorf("sqlstore: update provider: %w", err)
	}
	rec, err := s.load(ctx, tx, `id = ?`, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classifyUnique(err)
	}
	return rec, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, oldHash, newHash string) error {
	return s.exec(ctx, id, credential.ErrConflict,
		`UPDATE credentials SET password_hash = ?, updated_at = ? WHERE id = ? AND password_hash = ?`,
		newHash, millis(s.now()), id, oldHash)
}

func (s *Store) UpdateRole(ctx context.Context, id string, role credential.Role) error {
	return s.exec(ctx, id, nil,
		`UPDATE credentials SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), millis(s.now()), id)
}

func (s *Store) SetPermissions(ctx context.Context, id string, permissions []string) error {
	raw, err := json.Marshal(nonNil(permissions))
	if err != nil {
		return fmt.Errorf("sqlstore: encode permissions: %w", err)
	}
	return s.exec(ctx, id, nil,
		`UPDATE credentials SET permissions = ?, updated_at = ? WHERE id = ?`,
		string(raw), millis(s.now()), id)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

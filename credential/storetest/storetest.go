// Package storetest is a conformance suite for credential.Store
// implementations. Adapters call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/credential"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) credential.Store

// Epoch is the fixed reference instant used by the suite. Stores are expected
// to round-trip times with at least millisecond precision.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// unknownID is well-formed for every adapter and never assigned.
const unknownID = "000000000000000000000000"

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, s credential.Store)
	}{
		{"CreateAndFind", testCreateAndFind},
		{"Duplicates", testDuplicates},
		{"LockoutThreshold", testLockoutThreshold},
		{"ConcurrentFailedLogins", testConcurrentFailedLogins},
		{"SessionSet", testSessionSet},
		{"VerificationTokenSingleUse", testVerificationTokenSingleUse},
		{"ResetTokenReplacesHash", testResetTokenReplacesHash},
		{"TwoFactorLifecycle", testTwoFactorLifecycle},
		{"LinkExternalIdentity", testLinkExternalIdentity},
		{"PasswordHashSwap", testPasswordHashSwap},
		{"RoleAndPermissions", testRoleAndPermissions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

// Local returns a minimal local record for email/username.
func Local(email, username string) *credential.Record {
	return &credential.Record{
		Email:        email,
		Username:     username,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		Provider:     credential.ProviderLocal,
		Role:         credential.RoleUser,
		Permissions:  []string{},
	}
}

func mustCreate(t *testing.T, s credential.Store, rec *credential.Record) *credential.Record {
	t.Helper()
	out, err := s.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("Create(%s): %v", rec.Email, err)
	}
	if out.ID == "" {
		t.Fatalf("Create(%s) returned empty id", rec.Email)
	}
	return out
}

func mustFind(t *testing.T, s credential.Store, id string) *credential.Record {
	t.Helper()
	out, err := s.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	return out
}

func testCreateAndFind(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := Local("alice@example.com", "alice")
	rec.Permissions = []string{"posts:read"}
	created := mustCreate(t, s, rec)

	byEmail, err := s.FindByEmail(ctx, "alice@example.com")
	if err != nil || byEmail.ID != created.ID {
		t.Fatalf("FindByEmail: rec=%+v err=%v", byEmail, err)
	}
	byName, err := s.FindByUsername(ctx, "alice")
	if err != nil || byName.ID != created.ID {
		t.Fatalf("FindByUsername: rec=%+v err=%v", byName, err)
	}
	got := mustFind(t, s, created.ID)
	if got.PasswordHash != rec.PasswordHash || got.Provider != credential.ProviderLocal || got.Role != credential.RoleUser {
		t.Fatalf("unexpected stored record: %+v", got)
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "posts:read" {
		t.Fatalf("permissions not persisted: %v", got.Permissions)
	}
	if got.EmailVerified || got.TwoFactorEnabled || got.FailedLoginCount != 0 || got.LockedUntil != nil {
		t.Fatalf("unexpected defaults: %+v", got)
	}

	if _, err := s.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByExternalID(ctx, credential.ProviderGoogle, "g-1"); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for external id, got %v", err)
	}

	ext := Local("bob@example.com", "bob")
	ext.PasswordHash = ""
	ext.Provider = credential.ProviderGoogle
	ext.ExternalIDs = map[credential.Provider]string{credential.ProviderGoogle: "g-1"}
	ext.EmailVerified = true
	extCreated := mustCreate(t, s, ext)
	found, err := s.FindByExternalID(ctx, credential.ProviderGoogle, "g-1")
	if err != nil || found.ID != extCreated.ID {
		t.Fatalf("FindByExternalID: rec=%+v err=%v", found, err)
	}
	if found.HasPassword() {
		t.Fatal("external record should not carry a password hash")
	}
}

func testDuplicates(t *testing.T, s credential.Store) {
	ctx := context.Background()
	first := Local("alice@example.com", "alice")
	first.ExternalIDs = map[credential.Provider]string{credential.ProviderGitHub: "gh-7"}
	mustCreate(t, s, first)

	if _, err := s.Create(ctx, Local("alice@example.com", "alice2")); !errors.Is(err, credential.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if _, err := s.Create(ctx, Local("alice2@example.com", "alice")); !errors.Is(err, credential.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	dupExt := Local("carol@example.com", "carol")
	dupExt.ExternalIDs = map[credential.Provider]string{credential.ProviderGitHub: "gh-7"}
	if _, err := s.Create(ctx, dupExt); !errors.Is(err, credential.ErrDuplicateExternalID) {
		t.Fatalf("expected ErrDuplicateExternalID, got %v", err)
	}
}

func testLockoutThreshold(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s, Local("alice@example.com", "alice"))
	policy := credential.LockoutPolicy{Threshold: 5, Now: Epoch, Until: Epoch.Add(15 * time.Minute)}

	for i := 1; i <= 4; i++ {
		out, err := s.RegisterFailedLogin(ctx, rec.ID, policy)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if out.FailedLoginCount != i || out.LockedUntil != nil {
			t.Fatalf("failure %d: count=%d locked=%v", i, out.FailedLoginCount, out.LockedUntil)
		}
	}
	out, err := s.RegisterFailedLogin(ctx, rec.ID, policy)
	if err != nil {
		t.Fatalf("fifth failure: %v", err)
	}
	if out.FailedLoginCount != 5 || out.LockedUntil == nil || !out.LockedUntil.Equal(policy.Until) {
		t.Fatalf("fifth failure should lock: count=%d locked=%v", out.FailedLoginCount, out.LockedUntil)
	}

	if _, err := s.RegisterFailedLogin(ctx, rec.ID, policy); !errors.Is(err, credential.ErrLocked) {
		t.Fatalf("expected ErrLocked while locked, got %v", err)
	}
	if got := mustFind(t, s, rec.ID); got.FailedLoginCount != 5 {
		t.Fatalf("count must not move while locked, got %d", got.FailedLoginCount)
	}
	if _, err := s.RecordSuccessfulLogin(ctx, rec.ID, "", Epoch.Add(time.Minute)); !errors.Is(err, credential.ErrLocked) {
		t.Fatalf("expected ErrLocked on success while locked, got %v", err)
	}

	after := Epoch.Add(16 * time.Minute)
	ok, err := s.RecordSuccessfulLogin(ctx, rec.ID, "sess-1", after)
	if err != nil {
		t.Fatalf("success after expiry: %v", err)
	}
	if ok.FailedLoginCount != 0 || ok.LockedUntil != nil || ok.LastLogin == nil || !ok.LastLogin.Equal(after) {
		t.Fatalf("success should reset state: %+v", ok)
	}
	if !ok.HasSession("sess-1") {
		t.Fatalf("session not recorded: %v", ok.ActiveSessionIDs)
	}
}

func testConcurrentFailedLogins(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s, Local("alice@example.com", "alice"))
	policy := credential.LockoutPolicy{Threshold: 5, Now: Epoch, Until: Epoch.Add(15 * time.Minute)}

	const workers = 12
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		locked int
		other  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RegisterFailedLogin(ctx, rec.ID, policy)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
			case errors.Is(err, credential.ErrLocked):
				locked++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	got := mustFind(t, s, rec.ID)
	if got.FailedLoginCount != 5 {
		t.Fatalf("expected exactly 5 counted failures, got %d", got.FailedLoginCount)
	}
	if locked != workers-5 {
		t.Fatalf("expected %d locked rejections, got %d", workers-5, locked)
	}
}

func testSessionSet(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s, Local("alice@example.com", "alice"))

	for _, sid := range []string{"a", "b", "a"} {
		if err := s.AddSession(ctx, rec.ID, sid); err != nil {
			t.Fatalf("AddSession(%s): %v", sid, err)
		}
	}
	if got := mustFind(t, s, rec.ID); len(got.ActiveSessionIDs) != 2 {
		t.Fatalf("expected set semantics, got %v", got.ActiveSessionIDs)
	}
	for i := 0; i < 2; i++ {
		if err := s.RemoveSession(ctx, rec.ID, "a"); err != nil {
			t.Fatalf("RemoveSession #%d: %v", i, err)
		}
	}
	got := mustFind(t, s, rec.ID)
	if got.HasSession("a") || !got.HasSession("b") {
		t.Fatalf("unexpected sessions: %v", got.ActiveSessionIDs)
	}
	if err := s.RemoveSession(ctx, unknownID, "a"); err != nil {
		t.Fatalf("RemoveSession on unknown record: %v", err)
	}
}

func testVerificationTokenSingleUse(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s, Local("alice@example.com", "alice"))
	other := mustCreate(t, s, Local("bob@example.com", "bob"))

	if err := s.SetEmailVerificationToken(ctx, rec.ID, "tok-a", Epoch.Add(24*time.Hour)); err != nil {
		t.Fatalf("SetEmailVerificationToken: %v", err)
	}
	if err := s.SetEmailVerificationToken(ctx, other.ID, "tok-b", Epoch.Add(-time.Second)); err != nil {
		t.Fatalf("SetEmailVerificationToken: %v", err)
	}

	out, err := s.ConsumeEmailVerificationToken(ctx, "tok-a", Epoch)
	if err != nil {
		t.Fatalf("ConsumeEmailVerificationToken: %v", err)
	}
	if out.ID != rec.ID || !out.EmailVerified || out.EmailVerificationToken != "" || out.EmailVerificationExpires != nil {
		t.Fatalf("unexpected consumed record: %+v", out)
	}
	if _, err := s.ConsumeEmailVerificationToken(ctx, "tok-a", Epoch); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("second consume should fail, got %v", err)
	}
	if _, err := s.ConsumeEmailVerificationToken(ctx, "tok-b", Epoch); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("expired token should fail, got %v", err)
	}
	if got := mustFind(t, s, other.ID); got.EmailVerified {
		t.Fatal("expired token must not verify the email")
	}
}

func testResetTokenReplacesHash(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s, Local("alice@example.com", "alice"))
	if err := s.SetPasswordResetToken(ctx, rec.ID, "reset-1", Epoch.Add(time.Hour)); err != nil {
		t.Fatalf("SetPasswordResetToken: %v", err)
	}
	if _, err := s.ConsumePasswordResetToken(ctx, "reset-1", "new-hash", Epoch.Add(time.Hour)); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("token at its expiry instant should be rejected, got %v", err)
	}
	out, err := s.ConsumePasswordResetToken(ctx, "reset-1", "new-hash", Epoch.Add(59*time.Minute))
	if err != nil {
		t.Fatalf("ConsumePasswordResetToken: %v", err)
	}
	if out.PasswordHash != "new-hash" || out.PasswordResetToken != "" || out.PasswordResetExpires != nil {
		t.Fatalf("unexpected record after reset: %+v", out)
	}
	if _, err := s.ConsumePasswordResetToken(ctx, "reset-1", "again", Epoch); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("reuse should fail, got %v", err)
	}
	if _, err := s.ConsumePasswordResetToken(ctx, "", "again", Epoch); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("empty token should fail, got %v", err)
	}
}

func testTwoFactorLifecycle(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s, Local("alice@example.com", "alice"))

	if err := s.EnableTwoFactor(ctx, rec.ID, "SECRET"); !errors.Is(err, credential.ErrConflict) {
		t.Fatalf("enable without pending secret should conflict, got %v", err)
	}
	if err := s.SetPendingTwoFactorSecret(ctx, rec.ID, "FIRST"); err != nil {
		t.Fatalf("SetPendingTwoFactorSecret: %v", err)
	}
	if err := s.SetPendingTwoFactorSecret(ctx, rec.ID, "SECOND"); err != nil {
		t.Fatalf("re-enrollment before confirm should replace: %v", err)
	}
	if err := s.EnableTwoFactor(ctx, rec.ID, "FIRST"); !errors.Is(err, credential.ErrConflict) {
		t.Fatalf("stale secret should conflict, got %v", err)
	}
	if err := s.EnableTwoFactor(ctx, rec.ID, "SECOND"); err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if err := s.SetPendingTwoFactorSecret(ctx, rec.ID, "THIRD"); !errors.Is(err, credential.ErrTwoFactorEnabled) {
		t.Fatalf("expected ErrTwoFactorEnabled, got %v", err)
	}
	got := mustFind(t, s, rec.ID)
	if !got.TwoFactorEnabled || got.TwoFactorSecret != "SECOND" {
		t.Fatalf("unexpected 2fa state: enabled=%v secret=%q", got.TwoFactorEnabled, got.TwoFactorSecret)
	}
	if err := s.DisableTwoFactor(ctx, rec.ID); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}
	got = mustFind(t, s, rec.ID)
	if got.TwoFactorEnabled || got.TwoFactorSecret != "" {
		t.Fatalf("disable should clear state: enabled=%v secret=%q", got.TwoFactorEnabled, got.TwoFactorSecret)
	}
}

func testLinkExternalIdentity(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s, Local("alice@example.com", "alice"))
	other := mustCreate(t, s, Local("bob@example.com", "bob"))

	out, err := s.LinkExternalIdentity(ctx, rec.ID, credential.ProviderGoogle, "g-42")
	if err != nil {
		t.Fatalf("LinkExternalIdentity: %v", err)
	}
	if out.Provider != credential.ProviderGoogle || !out.EmailVerified || out.ExternalIDs[credential.ProviderGoogle] != "g-42" {
		t.Fatalf("unexpected linked record: %+v", out)
	}
	if !out.HasPassword() {
		t.Fatal("linking must keep the local password hash")
	}
	found, err := s.FindByExternalID(ctx, credential.ProviderGoogle, "g-42")
	if err != nil || found.ID != rec.ID {
		t.Fatalf("FindByExternalID after link: rec=%+v err=%v", found, err)
	}
	if _, err := s.LinkExternalIdentity(ctx, other.ID, credential.ProviderGoogle, "g-42"); !errors.Is(err, credential.ErrDuplicateExternalID) {
		t.Fatalf("expected ErrDuplicateExternalID, got %v", err)
	}
	if _, err := s.LinkExternalIdentity(ctx, "missing", credential.ProviderGitHub, "gh-1"); err == nil {
		t.Fatal("linking an unknown record should fail")
	}
}

func testPasswordHashSwap(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s, Local("alice@example.com", "alice"))
	if err := s.UpdatePasswordHash(ctx, rec.ID, "stale", "next"); !errors.Is(err, credential.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.UpdatePasswordHash(ctx, rec.ID, rec.PasswordHash, "next"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	if got := mustFind(t, s, rec.ID); got.PasswordHash != "next" {
		t.Fatalf("hash not swapped: %q", got.PasswordHash)
	}
}

func testRoleAndPermissions(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := mustCreate(t, s, Local("alice@example.com", "alice"))
	if err := s.UpdateRole(ctx, rec.ID, credential.RoleModerator); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	perms := []string{"posts:delete", "users:ban"}
	if err := s.SetPermissions(ctx, rec.ID, perms); err != nil {
		t.Fatalf("SetPermissions: %v", err)
	}
	got := mustFind(t, s, rec.ID)
	if got.Role != credential.RoleModerator {
		t.Fatalf("role not updated: %s", got.Role)
	}
	if fmt.Sprint(got.Permissions) != fmt.Sprint(perms) {
		t.Fatalf("permissions mismatch: %v", got.Permissions)
	}
	if err := s.UpdateRole(ctx, "missing", credential.RoleAdmin); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

package credential

import (
	"testing"
	"time"
)

func TestRecordLocked(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)
	rec := &Record{LockedUntil: &until}

	if !rec.Locked(now) {
		t.Fatal("expected lock to be active before deadline")
	}
	if rec.Locked(until) {
		t.Fatal("lock must be inactive at the deadline")
	}
	if (&Record{}).Locked(now) {
		t.Fatal("record without deadline must not be locked")
	}
}

func TestRedactedStripsSecrets(t *testing.T) {
	rec := &Record{
		ID:                     "u1",
		PasswordHash:           "hash",
		TwoFactorSecret:        "SECRET",
		EmailVerificationToken: "v",
		PasswordResetToken:     "r",
		Permissions:            []string{"a"},
		ExternalIDs:            map[Provider]string{ProviderGoogle: "g"},
	}
	out := rec.Redacted()
	if out.PasswordHash != "" || out.TwoFactorSecret != "" || out.EmailVerificationToken != "" || out.PasswordResetToken != "" {
		t.Fatalf("secrets survived redaction: %+v", out)
	}
	out.Permissions[0] = "b"
	out.ExternalIDs[ProviderGoogle] = "x"
	if rec.Permissions[0] != "a" || rec.ExternalIDs[ProviderGoogle] != "g" {
		t.Fatal("redacted copy shares state with the original")
	}
	if rec.PasswordHash != "hash" {
		t.Fatal("original must keep its hash")
	}
}

func TestNormalize(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("NormalizeEmail=%q", got)
	}
	got := NormalizePermissions([]string{" posts:read", "", "posts:read", "users:ban"})
	if len(got) != 2 || got[0] != "posts:read" || got[1] != "users:ban" {
		t.Fatalf("NormalizePermissions=%v", got)
	}
}

func TestRoleAndProviderSets(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleModerator, RoleAdmin} {
		if !r.Valid() {
			t.Fatalf("%s should be valid", r)
		}
	}
	if Role("root").Valid() {
		t.Fatal("unknown role accepted")
	}
	if !ProviderGitHub.External() || ProviderLocal.External() || Provider("saml").Valid() {
		t.Fatal("provider classification wrong")
	}
}

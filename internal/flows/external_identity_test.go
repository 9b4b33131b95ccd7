package flows

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore/credential"
	"github.com/MrEthical07/authcore/store/memstore"
)

var errInvalidInput = errors.New("invalid input")

func linkerDeps(s *memstore.Store) ExternalIdentityDeps {
	return ExternalIdentityDeps{
		FindByExternalID:     s.FindByExternalID,
		FindByEmail:          s.FindByEmail,
		LinkExternalIdentity: s.LinkExternalIdentity,
		Create:               s.Create,
		Errors: ExternalIdentityErrors{
			EngineNotReady: errNotReady,
			InvalidInput:   errInvalidInput,
		},
	}
}

func TestResolveExternalIdentityLinksExistingEmail(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	local, err := s.Create(ctx, &credential.Record{
		Email: "bob@example.com", Username: "bob", PasswordHash: "h", Provider: credential.ProviderLocal, Role: credential.RoleUser,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := RunResolveExternalIdentity(ctx, ExternalIdentityRequest{
		Provider: credential.ProviderGoogle, ExternalID: "g-1", Email: "Bob@Example.com",
	}, linkerDeps(s))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec.ID != local.ID {
		t.Fatal("expected link onto existing record")
	}
	if rec.Provider != credential.ProviderGoogle || !rec.EmailVerified || rec.PasswordHash != "h" {
		t.Fatalf("unexpected linked record %+v", rec)
	}

	again, err := RunResolveExternalIdentity(ctx, ExternalIdentityRequest{
		Provider: credential.ProviderGoogle, ExternalID: "g-1", Email: "other@example.com",
	}, linkerDeps(s))
	if err != nil || again.ID != local.ID {
		t.Fatalf("second resolve: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one record, got %d", s.Len())
	}
}

func TestResolveExternalIdentityCreatesWithUniqueUsername(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	if _, err := s.Create(ctx, &credential.Record{
		Email: "a@example.com", Username: "carol_smith", Provider: credential.ProviderLocal, Role: credential.RoleUser,
	}); err != nil {
		t.Fatal(err)
	}
	created := 0
	deps := linkerDeps(s)
	deps.EmitRegister = func(context.Context, *credential.Record) { created++ }

	rec, err := RunResolveExternalIdentity(ctx, ExternalIdentityRequest{
		Provider: credential.ProviderGitHub, ExternalID: "42", Email: "carol@example.com", DisplayName: "Carol Smith",
	}, deps)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec.Username != "carol_smith1" {
		t.Fatalf("username = %q", rec.Username)
	}
	if rec.HasPassword() || !rec.EmailVerified || rec.Role != credential.RoleUser {
		t.Fatalf("unexpected new record %+v", rec)
	}
	if rec.ExternalIDs[credential.ProviderGitHub] != "42" || created != 1 {
		t.Fatalf("external id=%q created=%d", rec.ExternalIDs[credential.ProviderGitHub], created)
	}
}

func TestResolveExternalIdentityWithoutEmail(t *testing.T) {
	s := memstore.New()
	rec, err := RunResolveExternalIdentity(context.Background(), ExternalIdentityRequest{
		Provider: credential.ProviderGitHub, ExternalID: "777",
	}, linkerDeps(s))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec.Email != "777@github.local" {
		t.Fatalf("email = %q", rec.Email)
	}
	if rec.Username != "777" {
		t.Fatalf("username = %q", rec.Username)
	}
}

func TestResolveExternalIdentityNeverLinksPlaceholderEmail(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	squatter, err := s.Create(ctx, &credential.Record{
		Email: "424242@github.local", Username: "mallory", PasswordHash: "h", Provider: credential.ProviderLocal, Role: credential.RoleUser,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := RunResolveExternalIdentity(ctx, ExternalIdentityRequest{
		Provider: credential.ProviderGitHub, ExternalID: "424242",
	}, linkerDeps(s))
	if err == nil {
		t.Fatalf("resolved onto %s (%s), expected an error", rec.ID, rec.Username)
	}

	stored, err := s.FindByID(ctx, squatter.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.ExternalIDs) != 0 || stored.Provider != credential.ProviderLocal {
		t.Fatalf("placeholder-email record was linked: %+v", stored)
	}
	if _, err := s.FindByExternalID(ctx, credential.ProviderGitHub, "424242"); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("external id bound somewhere: %v", err)
	}
}

func TestIsPlaceholderEmail(t *testing.T) {
	cases := map[string]bool{
		"424242@github.local": true,
		"x@GOOGLE.LOCAL":      true,
		"a@local":             true,
		"a@example.com":       false,
		"a@localhost":         false,
		"a@mylocal.com":       false,
		"not-an-email":        false,
		PlaceholderEmail(credential.ProviderGoogle, "G-1"): true,
	}
	for email, want := range cases {
		if got := IsPlaceholderEmail(email); got != want {
			t.Fatalf("IsPlaceholderEmail(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestResolveExternalIdentityRejectsInput(t *testing.T) {
	s := memstore.New()
	cases := []ExternalIdentityRequest{
		{Provider: credential.ProviderLocal, ExternalID: "1"},
		{Provider: credential.ProviderGoogle, ExternalID: "  "},
		{Provider: "facebook", ExternalID: "1"},
	}
	for _, tc := range cases {
		if _, err := RunResolveExternalIdentity(context.Background(), tc, linkerDeps(s)); !errors.Is(err, errInvalidInput) {
			t.Fatalf("%+v: expected invalid input, got %v", tc, err)
		}
	}
}

func TestDeriveUsername(t *testing.T) {
	cases := []struct {
		display, email, want string
	}{
		{"Dana Scully", "d@x.io", "dana_scully"},
		{"  ", "fox.mulder@fbi.gov", "fox_mulder"},
		{"Zoë", "z@x.io", "userz"},
		{"A very long display name indeed", "", "a_very_long_display"},
		{"__Under--Score__", "", "under_score"},
	}
	for _, tc := range cases {
		if got := DeriveUsername(tc.display, tc.email, 3, 20); got != tc.want {
			t.Fatalf("DeriveUsername(%q, %q) = %q, want %q", tc.display, tc.email, got, tc.want)
		}
	}
}

func TestUsernameCandidateFitsMaxLength(t *testing.T) {
	base := strings.Repeat("x", 20)
	for attempt := 0; attempt < 15; attempt++ {
		got := UsernameCandidate(base, attempt, 20)
		if len(got) > 20 {
			t.Fatalf("attempt %d: %q too long", attempt, got)
		}
	}
	if got := UsernameCandidate("bob", 3, 20); got != "bob3" {
		t.Fatalf("got %q", got)
	}
}

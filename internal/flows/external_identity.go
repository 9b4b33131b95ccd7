package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/MrEthical07/authcore/credential"
)

// ExternalIdentityRequest is an identity asserted by a trusted upstream
// provider. Email may be empty.
type ExternalIdentityRequest struct {
	Provider    credential.Provider
	ExternalID  string
	Email       string
	DisplayName string
}

// ExternalIdentityMetrics carries metric IDs incremented by the linker.
type ExternalIdentityMetrics struct {
	Resolved int
	Linked   int
	Created  int
}

// ExternalIdentityErrors carries host sentinels returned by the linker.
type ExternalIdentityErrors struct {
	EngineNotReady error
	InvalidInput   error
}

// ExternalIdentityDeps captures everything the linker touches.
type ExternalIdentityDeps struct {
	DefaultRole         credential.Role
	UsernameMinLength   int
	UsernameMaxLength   int
	MaxUsernameAttempts int

	FindByExternalID     func(ctx context.Context, provider credential.Provider, externalID string) (*credential.Record, error)
	FindByEmail          func(ctx context.Context, email string) (*credential.Record, error)
	LinkExternalIdentity func(ctx context.Context, id string, provider credential.Provider, externalID string) (*credential.Record, error)
	Create               func(ctx context.Context, rec *credential.Record) (*credential.Record, error)

	EmitRegister func(ctx context.Context, rec *credential.Record)
	MetricInc    func(int)

	Metrics ExternalIdentityMetrics
	Errors  ExternalIdentityErrors
}

// resolvePasses bounds how often a lost race restarts resolution.
const resolvePasses = 3

var errRestart = errors.New("flows: restart resolution")

// RunResolveExternalIdentity maps an external identity to a record: an
// existing link wins, then a record with the same email is linked, otherwise
// a new record is created with a derived unique username and no password.
func RunResolveExternalIdentity(ctx context.Context, req ExternalIdentityRequest, deps ExternalIdentityDeps) (*credential.Record, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitRegister == nil {
		deps.EmitRegister = func(context.Context, *credential.Record) {}
	}
	if deps.UsernameMinLength <= 0 {
		deps.UsernameMinLength = 3
	}
	if deps.UsernameMaxLength < deps.UsernameMinLength {
		deps.UsernameMaxLength = 20
	}
	if deps.MaxUsernameAttempts <= 0 {
		deps.MaxUsernameAttempts = 20
	}
	if deps.DefaultRole == "" {
		deps.DefaultRole = credential.RoleUser
	}
	if deps.FindByExternalID == nil ||
		deps.FindByEmail == nil ||
		deps.LinkExternalIdentity == nil ||
		deps.Create == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if !req.Provider.External() || strings.TrimSpace(req.ExternalID) == "" {
		return nil, deps.Errors.InvalidInput
	}
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	req.Email = credential.NormalizeEmail(req.Email)
	linkByEmail := req.Email != ""
	if !linkByEmail {
		req.Email = PlaceholderEmail(req.Provider, req.ExternalID)
	}

	var lastErr error
	for pass := 0; pass < resolvePasses; pass++ {
		rec, err := resolveOnce(ctx, req, linkByEmail, deps)
		if errors.Is(err, errRestart) {
			lastErr = err
			continue
		}
		return rec, err
	}
	return nil, fmt.Errorf("resolve %s identity: concurrent updates kept conflicting: %w", req.Provider, lastErr)
}

// resolveOnce links onto a record found by email only when linkByEmail is
// set, i.e. the address came from the provider.
func resolveOnce(ctx context.Context, req ExternalIdentityRequest, linkByEmail bool, deps ExternalIdentityDeps) (*credential.Record, error) {
	rec, err := deps.FindByExternalID(ctx, req.Provider, req.ExternalID)
	if err == nil {
		deps.MetricInc(deps.Metrics.Resolved)
		return rec, nil
	}
	if !errors.Is(err, credential.ErrNotFound) {
		return nil, err
	}

	if linkByEmail {
		linked, err := linkExisting(ctx, req, deps)
		if linked != nil || err != nil {
			return linked, err
		}
	}

	base := DeriveUsername(req.DisplayName, req.Email, deps.UsernameMinLength, deps.UsernameMaxLength)
	for attempt := 0; attempt < deps.MaxUsernameAttempts; attempt++ {
		created, err := deps.Create(ctx, &credential.Record{
			Email:         req.Email,
			Username:      UsernameCandidate(base, attempt, deps.UsernameMaxLength),
			Provider:      req.Provider,
			ExternalIDs:   map[credential.Provider]string{req.Provider: req.ExternalID},
			EmailVerified: true,
			Role:          deps.DefaultRole,
		})
		switch {
		case err == nil:
			deps.MetricInc(deps.Metrics.Created)
			deps.EmitRegister(ctx, created)
			return created, nil
		case errors.Is(err, credential.ErrDuplicateUsername):
			continue
		case errors.Is(err, credential.ErrDuplicateEmail), errors.Is(err, credential.ErrDuplicateExternalID):
			return nil, errRestart
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("derive username from %q: %w", base, credential.ErrDuplicateUsername)
}

// linkExisting binds the identity to the record owning req.Email. It returns
// (nil, nil) when no record has that email.
func linkExisting(ctx context.Context, req ExternalIdentityRequest, deps ExternalIdentityDeps) (*credential.Record, error) {
	existing, err := deps.FindByEmail(ctx, req.Email)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	linked, err := deps.LinkExternalIdentity(ctx, existing.ID, req.Provider, req.ExternalID)
	if errors.Is(err, credential.ErrDuplicateExternalID) {
		return nil, errRestart
	}
	if err != nil {
		return nil, err
	}
	deps.MetricInc(deps.Metrics.Linked)
	return linked, nil
}

// PlaceholderEmail is used when the provider did not share an address.
func PlaceholderEmail(provider credential.Provider, externalID string) string {
	return sanitizeUsername(externalID) + "@" + string(provider) + ".local"
}

// IsPlaceholderEmail reports whether email is in a domain reserved for
// placeholder addresses. Such addresses are never accepted from users.
func IsPlaceholderEmail(email string) bool {
	_, domain, ok := strings.Cut(credential.NormalizeEmail(email), "@")
	return ok && (domain == "local" || strings.HasSuffix(domain, ".local"))
}

// DeriveUsername builds a username base from the display name, falling back
// to the local part of email. The result only contains [a-z0-9_].
func DeriveUsername(displayName, email string, minLen, maxLen int) string {
	base := sanitizeUsername(displayName)
	if len(base) < minLen {
		local, _, _ := strings.Cut(email, "@")
		base = sanitizeUsername(local)
	}
	if len(base) < minLen {
		base = "user" + base
	}
	if len(base) > maxLen {
		base = strings.TrimRight(base[:maxLen], "_")
	}
	return base
}

// UsernameCandidate returns base for attempt 0 and base plus a numeric
// suffix afterwards, truncating base so the result fits maxLen.
func UsernameCandidate(base string, attempt, maxLen int) string {
	if attempt == 0 {
		return base
	}
	suffix := strconv.Itoa(attempt)
	if len(base)+len(suffix) > maxLen {
		base = base[:maxLen-len(suffix)]
	}
	return base + suffix
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}

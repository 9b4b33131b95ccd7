package permission

import (
	"errors"
	"slices"

	"github.com/MrEthical07/authcore/credential"
)

var (
	// ErrRoleDenied is returned by Decision.Err for failed role checks.
	ErrRoleDenied = errors.New("role not permitted")
	// ErrPermissionDenied is returned by Decision.Err for failed permission checks.
	ErrPermissionDenied = errors.New("permission denied")
)

// Identity is the authorization view of an authenticated principal.
type Identity struct {
	UserID      string
	Role        credential.Role
	Permissions []string
}

// IdentityOf extracts the authorization identity from a credential record.
func IdentityOf(rec *credential.Record) Identity {
	if rec == nil {
		return Identity{}
	}
	return Identity{
		UserID:      rec.ID,
		Role:        rec.Role,
		Permissions: slices.Clone(rec.Permissions),
	}
}

// Reason explains a Decision.
type Reason string

const (
	ReasonRoleAllowed       Reason = "role_allowed"
	ReasonRoleNotAllowed    Reason = "role_not_allowed"
	ReasonAdminOverride     Reason = "admin_override"
	ReasonPermissionGranted Reason = "permission_granted"
	ReasonPermissionMissing Reason = "permission_missing"
	ReasonUnauthenticated   Reason = "unauthenticated"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err maps a denied decision to ErrRoleDenied or ErrPermissionDenied.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonRoleNotAllowed:
		return ErrRoleDenied
	default:
		return ErrPermissionDenied
	}
}

// RequireRole allows identities whose role is in allowed.
func RequireRole(id Identity, allowed ...credential.Role) Decision {
	if id.UserID == "" {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if slices.Contains(allowed, id.Role) {
		return Decision{Allowed: true, Reason: ReasonRoleAllowed}
	}
	return Decision{Reason: ReasonRoleNotAllowed}
}

// RequirePermission allows admins unconditionally and any other identity
// holding at least one of required.
func RequirePermission(id Identity, required ...string) Decision {
	if id.UserID == "" {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if id.Role == credential.RoleAdmin {
		return Decision{Allowed: true, Reason: ReasonAdminOverride}
	}
	for _, p := range required {
		if slices.Contains(id.Permissions, p) {
			return Decision{Allowed: true, Reason: ReasonPermissionGranted}
		}
	}
	return Decision{Reason: ReasonPermissionMissing}
}

package permission

import (
	"errors"
	"testing"

	"github.com/MrEthical07/authcore/credential"
)

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name    string
		id      Identity
		allowed []credential.Role
		want    Decision
	}{
		{"member", Identity{UserID: "u", Role: credential.RoleModerator}, []credential.Role{credential.RoleModerator, credential.RoleAdmin}, Decision{true, ReasonRoleAllowed}},
		{"outsider", Identity{UserID: "u", Role: credential.RoleUser}, []credential.Role{credential.RoleModerator}, Decision{false, ReasonRoleNotAllowed}},
		{"admin not listed", Identity{UserID: "u", Role: credential.RoleAdmin}, []credential.Role{credential.RoleModerator}, Decision{false, ReasonRoleNotAllowed}},
		{"empty set", Identity{UserID: "u", Role: credential.RoleAdmin}, nil, Decision{false, ReasonRoleNotAllowed}},
		{"anonymous", Identity{Role: credential.RoleAdmin}, []credential.Role{credential.RoleAdmin}, Decision{false, ReasonUnauthenticated}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RequireRole(tc.id, tc.allowed...); got != tc.want {
				t.Fatalf("RequireRole=%+v want %+v", got, tc.want)
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	cases := []struct {
		name     string
		id       Identity
		required []string
		want     Decision
	}{
		{"admin override with empty set", Identity{UserID: "u", Role: credential.RoleAdmin}, []string{"posts:delete"}, Decision{true, ReasonAdminOverride}},
		{"holds one", Identity{UserID: "u", Role: credential.RoleUser, Permissions: []string{"posts:read"}}, []string{"posts:write", "posts:read"}, Decision{true, ReasonPermissionGranted}},
		{"holds none", Identity{UserID: "u", Role: credential.RoleModerator, Permissions: []string{"posts:read"}}, []string{"users:ban"}, Decision{false, ReasonPermissionMissing}},
		{"no requirement", Identity{UserID: "u", Role: credential.RoleUser, Permissions: []string{"x"}}, nil, Decision{false, ReasonPermissionMissing}},
		{"anonymous", Identity{Permissions: []string{"x"}}, []string{"x"}, Decision{false, ReasonUnauthenticated}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RequirePermission(tc.id, tc.required...); got != tc.want {
				t.Fatalf("RequirePermission=%+v want %+v", got, tc.want)
			}
		})
	}
}

func TestDecisionErr(t *testing.T) {
	if err := (Decision{Allowed: true, Reason: ReasonRoleAllowed}).Err(); err != nil {
		t.Fatalf("allowed decision returned %v", err)
	}
	if err := (Decision{Reason: ReasonRoleNotAllowed}).Err(); !errors.Is(err, ErrRoleDenied) {
		t.Fatalf("expected ErrRoleDenied, got %v", err)
	}
	if err := (Decision{Reason: ReasonPermissionMissing}).Err(); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestIdentityOf(t *testing.T) {
	rec := &credential.Record{ID: "u1", Role: credential.RoleModerator, Permissions: []string{"a"}}
	id := IdentityOf(rec)
	id.Permissions[0] = "b"
	if rec.Permissions[0] != "a" {
		t.Fatal("identity must not alias record permissions")
	}
	if IdentityOf(nil).UserID != "" {
		t.Fatal("nil record should give empty identity")
	}
}

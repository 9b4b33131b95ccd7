package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/credential"
)

type stubAuthenticator map[string]*authcore.Principal

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*authcore.Principal, error) {
	p, ok := s[token]
	if !ok {
		return nil, authcore.ErrTokenInvalid
	}
	return p, nil
}

func principal(id string, role credential.Role, perms ...string) *authcore.Principal {
	return &authcore.Principal{
		Record:    &credential.Record{ID: id, Role: role, Permissions: perms},
		SessionID: "sess-" + id,
	}
}

func serve(t *testing.T, h http.Handler, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuthenticate(t *testing.T) {
	auth := stubAuthenticator{"good": principal("u1", credential.RoleUser)}
	var seen string
	h := Authenticate(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatal("principal missing from context")
		}
		seen = p.Record.ID
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Basic good", http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusNoContent},
		{"bearer good", http.StatusNoContent},
	}
	for _, tc := range cases {
		if rr := serve(t, h, tc.header); rr.Code != tc.status {
			t.Fatalf("%q: expected %d, got %d", tc.header, tc.status, rr.Code)
		}
	}
	if seen != "u1" {
		t.Fatalf("handler saw %q", seen)
	}
}

func TestAuthenticateNilEngine(t *testing.T) {
	h := Authenticate(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	if rr := serve(t, h, "Bearer good"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireRoleAndPermission(t *testing.T) {
	auth := stubAuthenticator{
		"user":   principal("u1", credential.RoleUser, "reports:read"),
		"mod":    principal("u2", credential.RoleModerator),
		"admin":  principal("u3", credential.RoleAdmin),
		"nobody": principal("u4", credential.RoleUser),
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	staff := Authenticate(auth)(RequireRole(credential.RoleModerator, credential.RoleAdmin)(ok))
	reports := Authenticate(auth)(RequirePermission("reports:read")(ok))

	cases := []struct {
		name    string
		handler http.Handler
		token   string
		status  int
	}{
		{"user not staff", staff, "user", http.StatusForbidden},
		{"moderator is staff", staff, "mod", http.StatusOK},
		{"admin is staff", staff, "admin", http.StatusOK},
		{"granted permission", reports, "user", http.StatusOK},
		{"admin override", reports, "admin", http.StatusOK},
		{"missing permission", reports, "nobody", http.StatusForbidden},
		{"unauthenticated", reports, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := ""
			if tc.token != "" {
				header = "Bearer " + tc.token
			}
			if rr := serve(t, tc.handler, header); rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestAuthorizeWithoutAuthenticate(t *testing.T) {
	h := RequireRole(credential.RoleUser)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	if rr := serve(t, h, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/credential"
	"github.com/MrEthical07/authcore/permission"
)

// Authenticator is the part of *authcore.Engine used by [Authenticate].
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*authcore.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [Authenticate].
func PrincipalFromContext(ctx context.Context) (*authcore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authcore.Principal)
	return p, ok && p != nil
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *authcore.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Authenticate rejects requests without a valid bearer session token.
func Authenticate(engine Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			p, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole allows principals holding one of roles. It must run after
// [Authenticate].
func RequireRole(roles ...credential.Role) func(http.Handler) http.Handler {
	return authorize(func(id permission.Identity) permission.Decision {
		return permission.RequireRole(id, roles...)
	})
}

// RequirePermission allows admins and principals holding one of perms.
func RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return authorize(func(id permission.Identity) permission.Decision {
		return permission.RequirePermission(id, perms...)
	})
}

func authorize(decide func(permission.Identity) permission.Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !decide(p.Identity()).Allowed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

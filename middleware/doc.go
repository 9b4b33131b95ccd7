// Package middleware adapts authcore session checks and RBAC decisions to
// net/http handlers.
//
// # Guards
//
//   - [Authenticate] verifies the bearer session token and stores the
//     resulting principal in the request context.
//   - [RequireRole] and [RequirePermission] evaluate the permission package
//     against that principal.
//
// Authentication failures are answered with 401, authorization failures
// with 403. Handlers read the principal with [PrincipalFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not
// parse tokens or load records itself.
package middleware

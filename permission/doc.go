// Package permission evaluates role and named-permission requirements
// against an already authenticated identity.
//
// Decisions are pure functions of the identity and the requirement: no I/O,
// no global state. Callers resolve the identity once per request (see the
// middleware package) and reuse it for every check.
//
// The admin role passes every permission check regardless of its explicit
// permission set. Role checks have no such override: a route restricted to
// moderators rejects admins unless admin is listed.
package permission

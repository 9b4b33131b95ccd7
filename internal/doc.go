// Package internal contains helpers private to authcore: opaque token and
// session id generation.
//
// # Sub-packages
//
//   - activity: async activity event dispatch (Dispatcher + Sink implementations)
//   - flows: pure flow functions behind Engine login and external identity resolution
//   - limiters: Redis-backed second-factor attempt limiter
//   - httpapi: HTTP handlers used by cmd/authcored
package internal

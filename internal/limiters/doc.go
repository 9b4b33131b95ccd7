// Package limiters holds Redis-backed attempt counters.
//
// A nil client disables limiting: every Check passes and every record call
// is a no-op, so the Engine works without Redis.
package limiters

// Package jwt issues and verifies the bearer session tokens handed to
// clients after registration or login.
//
// Tokens carry the principal id, email and session id and expire a fixed
// duration after issue. Verification is pure: it checks signature, algorithm
// and time claims only and never consults storage.
package jwt

// Package httpapi exposes an authcore Engine as a JSON HTTP API mounted
// under /api/auth.
package httpapi

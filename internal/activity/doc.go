// Package activity delivers account activity events (logins, registrations,
// resets, two-factor changes) to pluggable sinks.
//
// The Engine decides which actions are recorded; this package only buffers
// and forwards them. Delivery is best effort: a slow or failing sink never
// blocks or fails the operation that produced the event.
package activity

// Package credential defines the credential record persisted for every
// principal and the Store contract that persistence adapters implement.
//
// Every mutation on [Store] is expressed as an intent (register a failed
// login, consume a reset token, enable two-factor) rather than a
// read-modify-write of the whole record. Adapters must apply each intent as a
// single conditional update so that concurrent requests against the same
// record cannot lose writes or reuse a single-use token.
//
// The store conformance suite in package storetest exercises these rules for
// every adapter shipped with the module.
package credential

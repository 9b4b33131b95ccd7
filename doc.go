// Package authcore is an authentication and authorization core: it verifies
// credentials, locks out brute-force attempts, gates logins behind TOTP
// second factors, issues signed session tokens, runs the single-use email
// verification and password reset tokens, links external identities and
// evaluates role and permission checks.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. All persistence goes through a [credential.Store]; every
// mutation the Engine performs is one atomic, intent-expressed store command,
// so concurrent logins against the same record never lose a failed-attempt
// increment or consume a token twice.
//
// # Architecture boundaries
//
// authcore is the public surface: [Engine], [Builder], [Config] and value
// types. Flow orchestration, the activity dispatcher, the two-factor attempt
// limiter and token generation live under internal/. Store adapters live in
// store/ and import only the credential package, never authcore.
//
// # What this package must NOT do
//
//   - Return password hashes, TOTP secrets or single-use tokens on records;
//     every record leaving the Engine is [credential.Record.Redacted].
//   - Fail an operation because an activity event or notification could
//     not be delivered, except where documented.
//   - Speak HTTP. Transport adapters live in middleware and internal/httpapi.
package authcore

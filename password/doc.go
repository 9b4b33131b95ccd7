// Package password hashes and verifies account passwords.
//
// New hashes are argon2id encoded in PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
//
// Hashes imported from earlier deployments in bcrypt format ($2a$, $2b$,
// $2y$) still verify through [Hasher]; [Hasher.NeedsUpgrade] reports them so
// callers can re-hash on the next successful login.
//
// Password bytes are used exactly as provided, without Unicode normalization.
// Length and complexity policy belongs to the caller.
package password

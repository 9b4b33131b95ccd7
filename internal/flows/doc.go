// Package flows contains the multi-step Engine operations as pure functions.
//
// Each Run* function takes a request and a dependency struct of closures and
// owns no resources: storage, hashing, token signing, activity emission and
// metrics are all reached through the Deps. Host-level sentinel errors are
// injected too, so the root package's error identities flow through
// unchanged and the flows can be tested with in-memory fakes.
//
// Flows must not import the root authcore package.
package flows

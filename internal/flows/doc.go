// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRegister, RunLogin, RunRefresh, etc.) accepts a typed
// dependency struct and returns a result carrying either the success payload
// or a classified failure. The Engine maps failures to public errors, audit
// events and metrics, which keeps every branch testable with plain function
// fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the user store, refresh and single-use
// ledgers, password hasher, token issuer and mailer. They do NOT own any of
// these resources — ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import stagepass (to avoid import cycles).
//   - Perform I/O directly — all I/O is mediated through dependency funcs.
package flows

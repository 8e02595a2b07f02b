// Package stagepass is an authentication core: argon2id passwords, HS256
// access tokens, rotating refresh tokens with reuse detection, and single-use
// email-verification and password-reset tokens.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// stagepass is the public surface. It exposes [Engine], [Builder], [Config],
// [Error] and request/result value types. Flow orchestration, rate limiting
// and audit dispatch live under internal/ and are never exported. Persistence
// is pluggable through [UserStore], refresh.Store and singleuse.Store, with
// memory, Redis and Postgres implementations under store/.
//
// # What this package must NOT do
//
//   - Return raw store or hashing errors to callers; they surface as [ErrInternal].
//   - Reveal whether an email is registered through errors or timing.
//   - Import any sub-package that re-imports stagepass (no import cycles).
package stagepass

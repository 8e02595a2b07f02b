// Package rate throttles login, forgot-password and verification requests
// per subject (normalised email or client IP).
//
// # Backends
//
//   - [Redis]: fixed-window counters, INCR + conditional EXPIRE on first hit.
//     Key format: <prefix>:rl:<action>:<subject>.
//   - [Memory]: golang.org/x/time/rate token buckets, one per key.
//
// # What this package must NOT do
//
//   - Decide what happens to a denied request (the Engine maps it to RateLimited).
//   - Be imported outside the stagepass module.
package rate

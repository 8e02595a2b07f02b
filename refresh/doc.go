// Package refresh implements the refresh-token ledger: issuance, rotation with
// reuse detection, and revocation of opaque refresh secrets.
//
// # Record lifecycle
//
// A [Record] is Active until it is revoked, and revocation is terminal. Rotation
// revokes the presented record and links it to its successor through
// ReplacedByID, so the replaced-by graph only ever points from older records to
// newer ones.
//
// # Reuse detection
//
// Presenting a secret whose record was already rotated is treated as a replay:
// every Active record of the owner is revoked and [ErrReuseDetected] is
// returned. Two concurrent rotations of one secret therefore yield one success
// and one reuse. A record revoked for any other reason (logout, password reset,
// an earlier reuse cascade) is simply invalid.
//
// # Architecture boundaries
//
// The ledger owns secret generation and outcome classification. The [Store]
// owns atomicity: its Rotate method performs the whole look-up, decide and
// write sequence as one unit (a row lock in Postgres, a Lua script in Redis).
//
// # What this package must NOT do
//
//   - Persist or log plaintext secrets.
//   - Import stagepass or any store implementation.
package refresh

// Package redis implements refresh.Store and singleuse.Store on Redis.
//
// Refresh records live in hashes keyed by the secret digest, with a per-user
// set of digests as the session index. Rotation, logout and the reuse cascade
// run as Lua scripts so each is a single atomic step on the server.
// Single-use tokens are consumed under WATCH/MULTI and retried on conflict.
//
// Every key starts with "{prefix}:". The braces make the prefix a hash tag,
// so a store lives in one Redis Cluster slot and its scripts stay single-slot.
//
// Keys carry PEXPIREAT at the record's expiry, so Redis removes expired
// records itself; DeleteExpired only sweeps stale index members.
//
// # What this package must NOT do
//
//   - Store raw secrets.
//   - Decide token semantics beyond the Store contracts.
package redis

// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and digest use unpadded standard base64. Verification reads every
// parameter from the encoded string, so raising the configured cost never
// invalidates stored hashes; [Argon2.NeedsUpgrade] tells the caller when a
// stored hash should be replaced after the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Length policy and the
// decision to rehash belong to the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Distinguish a corrupted hash from a wrong password in Verify's result.
//   - Log plaintext passwords or hash parameters.
package password

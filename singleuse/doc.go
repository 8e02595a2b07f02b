// Package singleuse implements secrets that can be redeemed exactly once:
// email-verification and password-reset tokens.
//
// Only the digest of a secret is stored. [Store.Consume] checks existence,
// kind, expiry and the used flag and marks the token used in a single atomic
// step, so two concurrent redemptions of one secret cannot both succeed.
// Outstanding sibling tokens of the same kind are left untouched.
package singleuse

// Package jwt issues and validates HS256 access tokens and produces the opaque
// refresh secrets exchanged for them.
//
// Validation is strict: zero clock-skew leeway, the HS256 algorithm only, and
// mandatory iss, aud, exp, sub and jti claims. Failures are reported as one of
// five sentinel errors so callers can tell expiry (refresh silently) from
// forgery or corruption (force re-login).
package jwt

// Package middleware adapts engine access-token validation to net/http.
//
//   - [RequireAccessToken] checks the Authorization bearer token and stores
//     the claims in the request context.
//   - [ClientInfo] records the client IP and User-Agent for the engine.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token checks are
// delegated to Engine.ValidateAccessToken.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Touch refresh records or any store.
package middleware

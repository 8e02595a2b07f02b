// Package httpapi serves the engine operations as JSON over HTTP with chi.
//
// Every /auth endpoint accepts and returns the request and result types of
// package stagepass. Engine errors are rendered as
//
//	{"status": 401, "code": "invalid_token", "message": "...", "field": "..."}
//
// with the status chosen by error kind. Locked and rate-limited responses
// carry Retry-After.
//
// # What this package must NOT do
//
//   - Implement authentication decisions. Handlers decode, call the engine and encode.
//   - Log request bodies. They carry passwords and tokens.
package httpapi

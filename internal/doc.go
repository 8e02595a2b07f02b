// Package internal contains helper utilities that are private to stagepass,
// chiefly opaque secret generation and hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - logging: slog setup with trace correlation
//   - observability: metrics and health HTTP endpoints
//   - rate: Redis and in-process request throttles
//
// # What this package must NOT do
//
//   - Export types that appear in the public stagepass API.
//   - Be imported by any package outside the stagepass module.
package internal

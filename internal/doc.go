// Package internal contains helpers that are private to authcore: refresh
// secret generation and hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - ids: monotonic ULID generation for ledger rows
//   - rate: Redis-backed fixed-window limiter
//   - app: process configuration, backend wiring and the HTTP server for cmd/authd
//   - security: posture report derived from the effective configuration
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal

// Package store defines the credential data model and the persistence contracts
// consumed by the authcore Engine.
//
// # Contracts
//
//   - [CredentialStore]: accounts, roles, permissions and their set-valued edges.
//   - [RefreshLedger]: hashed-at-rest refresh tokens with revocation state.
//
// Implementations live in sub-packages: memory (tests, single process),
// postgres (durable, row-locked rotation) and redisledger (ledger only,
// Lua-scripted rotation).
//
// # Architecture boundaries
//
// This package owns types and sentinel errors only. It does NOT hash secrets,
// issue tokens or decide whether a caller is authorized.
//
// # What this package must NOT do
//
//   - Import authcore, jwt or any implementation package.
//   - Carry raw refresh secrets in [RefreshToken].
package store

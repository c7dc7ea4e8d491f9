// Package redisledger implements store.RefreshLedger on Redis.
//
// Each ledger row is a hash keyed by token hash, and each account keeps a set
// of its token hashes. Rotation, revocation and insertion are Lua scripts so
// that the check and the write happen in one server-side step. Rows are
// never deleted unless the ledger is built with a retention window, so late
// reuse keeps reporting expired or revoked instead of not found.
package redisledger

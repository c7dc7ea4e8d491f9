// Package memory is an in-process implementation of store.Store.
//
// It is intended for tests, single-node deployments and the load tool.
// Refresh rotation takes a lock keyed by token hash so that concurrent
// rotations of the same secret serialize and exactly one succeeds.
package memory

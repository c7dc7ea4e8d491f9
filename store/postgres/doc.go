// Package postgres implements store.Store on PostgreSQL through database/sql
// and the pgx stdlib driver.
//
// Refresh rotation runs in a single transaction that locks the presented
// row with SELECT ... FOR UPDATE, so concurrent rotations of one secret
// serialize and the loser observes the row already revoked. The schema ships
// embedded in the binary; see Migrate.
package postgres

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/authcore/store"
)

const tokenColumns = `id, account_id, token_hash, created_at, expires_at, revoked, revoked_at`

// InsertRefreshToken stores a new ledger row.
func (s *Store) InsertRefreshToken(ctx context.Context, t store.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into `+s.refreshTokens+` (`+tokenColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.AccountID, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.Revoked, nullTime(t.RevokedAt))
	return mapErr("postgres.InsertRefreshToken", err)
}

// RefreshTokenByHash returns the row for hash or store.ErrNotFound.
func (s *Store) RefreshTokenByHash(ctx context.Context, hash string) (store.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+tokenColumns+` from `+s.refreshTokens+` where token_hash = $1
	`, hash)
	t, err := scanToken(row)
	return t, mapErr("postgres.RefreshTokenByHash", err)
}

// RefreshTokensForAccount lists every row issued to the account, oldest first.
func (s *Store) RefreshTokensForAccount(ctx context.Context, accountID string) ([]store.RefreshToken, error) {
	const op = "postgres.RefreshTokensForAccount"
	rows, err := s.db.QueryContext(ctx, `
		select `+tokenColumns+` from `+s.refreshTokens+`
		where account_id = $1
		order by created_at, id
	`, accountID)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	out := []store.RefreshToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, t)
	}
	return out, mapErr(op, rows.Err())
}

// RotateRefreshToken serializes on the presented row with FOR UPDATE. A
// concurrent loser blocks until the winner commits and then reads
// revoked = true.
func (s *Store) RotateRefreshToken(ctx context.Context, presentedHash string, next store.RefreshToken, now time.Time) (store.RefreshToken, error) {
	const op = "postgres.RotateRefreshToken"

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return store.RefreshToken{}, mapErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	prior, err := scanToken(tx.QueryRowContext(ctx, `
		select `+tokenColumns+` from `+s.refreshTokens+`
		where token_hash = $1
		for update
	`, presentedHash))
	if err != nil {
		return store.RefreshToken{}, mapErr(op, err)
	}

	switch prior.State(now) {
	case store.TokenRevoked:
		return prior, store.ErrTokenRevoked
	case store.TokenExpired:
		return prior, store.ErrTokenExpired
	}

	if _, err := tx.ExecContext(ctx, `
		update `+s.refreshTokens+`
		set revoked = true, revoked_at = coalesce(revoked_at, $2)
		where id = $1
	`, prior.ID, now); err != nil {
		return store.RefreshToken{}, mapErr(op, err)
	}

	next.AccountID = prior.AccountID
	if _, err := tx.ExecContext(ctx, `
		insert into `+s.refreshTokens+` (`+tokenColumns+`)
		values ($1, $2, $3, $4, $5, false, null)
	`, next.ID, next.AccountID, next.TokenHash, next.CreatedAt, next.ExpiresAt); err != nil {
		return store.RefreshToken{}, mapErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return store.RefreshToken{}, mapErr(op, err)
	}

	prior.Revoked = true
	if prior.RevokedAt == nil {
		at := now
		prior.RevokedAt = &at
	}
	return prior, nil
}

// RevokeRefreshToken is idempotent; revoked_at keeps its first value.
func (s *Store) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (store.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		update `+s.refreshTokens+`
		set revoked = true, revoked_at = coalesce(revoked_at, $2)
		where token_hash = $1
		returning `+tokenColumns+`
	`, hash, now)
	t, err := scanToken(row)
	return t, mapErr("postgres.RevokeRefreshToken", err)
}

// RevokeAllRefreshTokens revokes the account's unrevoked rows and returns how many changed.
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, accountID string, now time.Time) (int, error) {
	const op = "postgres.RevokeAllRefreshTokens"
	res, err := s.db.ExecContext(ctx, `
		update `+s.refreshTokens+`
		set revoked = true, revoked_at = coalesce(revoked_at, $2)
		where account_id = $1 and revoked = false
	`, accountID, now)
	if err != nil {
		return 0, mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr(op, err)
	}
	return int(n), nil
}

func scanToken(row rowScanner) (store.RefreshToken, error) {
	var (
		t         store.RefreshToken
		revokedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.Revoked, &revokedAt); err != nil {
		return store.RefreshToken{}, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

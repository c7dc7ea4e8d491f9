package redisledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/redis/go-redis/v9"
)

var _ store.RefreshLedger = (*Ledger)(nil)

// Ledger is a Redis-backed refresh-token ledger.
type Ledger struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// New returns a ledger under key namespace prefix. Rows are kept forever
// when retention <= 0; otherwise Redis evicts each row retention after its
// expiry, and later presentations of its secret report not found.
func New(rdb redis.UniversalClient, prefix string, retention time.Duration) *Ledger {
	if prefix == "" {
		prefix = "authcore"
	}
	if retention < 0 {
		retention = 0
	}
	return &Ledger{redis: rdb, prefix: prefix, retention: retention}
}

func (l *Ledger) rowPrefix() string     { return l.prefix + ":rt:" }
func (l *Ledger) accountPrefix() string { return l.prefix + ":rta:" }

// evictAt is the PEXPIREAT argument for a row expiring at expires; 0 means
// no eviction.
func (l *Ledger) evictAt(expires time.Time) int64 {
	if l.retention == 0 {
		return 0
	}
	return expires.Add(l.retention).UnixMilli()
}

func (l *Ledger) rowKey(hash string) string        { return l.rowPrefix() + hash }
func (l *Ledger) accountKey(account string) string { return l.accountPrefix() + account }

// InsertRefreshToken writes the row and indexes it under its account.
func (l *Ledger) InsertRefreshToken(ctx context.Context, t store.RefreshToken) error {
	res, err := insertLua.Run(ctx, l.redis,
		[]string{l.rowKey(t.TokenHash)},
		t.ID, t.AccountID, t.TokenHash,
		t.CreatedAt.UnixMilli(), t.ExpiresAt.UnixMilli(),
		l.evictAt(t.ExpiresAt), l.accountPrefix(),
	).Result()
	if err != nil {
		return unavailable(err)
	}
	code, _, err := parseReply(res)
	if err != nil {
		return err
	}
	if code == statusConflict {
		return store.ErrConflict
	}
	return nil
}

// RefreshTokenByHash returns the row or store.ErrNotFound.
func (l *Ledger) RefreshTokenByHash(ctx context.Context, hash string) (store.RefreshToken, error) {
	fields, err := l.redis.HGetAll(ctx, l.rowKey(hash)).Result()
	if err != nil {
		return store.RefreshToken{}, unavailable(err)
	}
	if len(fields) == 0 {
		return store.RefreshToken{}, store.ErrNotFound
	}
	return fromHash(fields)
}

// RefreshTokensForAccount returns rows still held in Redis, oldest first.
func (l *Ledger) RefreshTokensForAccount(ctx context.Context, accountID string) ([]store.RefreshToken, error) {
	hashes, err := l.redis.SMembers(ctx, l.accountKey(accountID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(hashes) == 0 {
		return []store.RefreshToken{}, nil
	}

	pipe := l.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.HGetAll(ctx, l.rowKey(h))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	out := make([]store.RefreshToken, 0, len(hashes))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		t, err := fromHash(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// RotateRefreshToken revokes the presented row and inserts next in one script call.
func (l *Ledger) RotateRefreshToken(ctx context.Context, presentedHash string, next store.RefreshToken, now time.Time) (store.RefreshToken, error) {
	res, err := rotateLua.Run(ctx, l.redis,
		[]string{l.rowKey(presentedHash), l.rowKey(next.TokenHash)},
		now.UnixMilli(), next.ID, next.TokenHash,
		next.CreatedAt.UnixMilli(), next.ExpiresAt.UnixMilli(),
		l.evictAt(next.ExpiresAt), l.accountPrefix(),
	).Result()
	if err != nil {
		return store.RefreshToken{}, unavailable(err)
	}

	code, prior, err := parseReply(res)
	if err != nil {
		return store.RefreshToken{}, err
	}
	switch code {
	case statusNotFound:
		return store.RefreshToken{}, store.ErrNotFound
	case statusRevoked:
		return prior, store.ErrTokenRevoked
	case statusExpired:
		return prior, store.ErrTokenExpired
	case statusConflict:
		return store.RefreshToken{}, store.ErrConflict
	case statusRotated:
		return prior, nil
	default:
		return store.RefreshToken{}, fmt.Errorf("%w: unknown rotate status %d", store.ErrUnavailable, code)
	}
}

// RevokeRefreshToken revokes one row. Revoking twice keeps the first RevokedAt.
func (l *Ledger) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (store.RefreshToken, error) {
	res, err := revokeLua.Run(ctx, l.redis, []string{l.rowKey(hash)}, now.UnixMilli()).Result()
	if err != nil {
		return store.RefreshToken{}, unavailable(err)
	}
	code, row, err := parseReply(res)
	if err != nil {
		return store.RefreshToken{}, err
	}
	if code == statusNotFound {
		return store.RefreshToken{}, store.ErrNotFound
	}
	return row, nil
}

// RevokeAllRefreshTokens revokes the account's unrevoked rows and returns how many changed.
func (l *Ledger) RevokeAllRefreshTokens(ctx context.Context, accountID string, now time.Time) (int, error) {
	n, err := revokeAllLua.Run(ctx, l.redis,
		[]string{l.accountKey(accountID)},
		now.UnixMilli(), l.rowPrefix(),
	).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func parseReply(res interface{}) (int64, store.RefreshToken, error) {
	parts, ok := res.([]interface{})
	if !ok || len(parts) == 0 {
		return 0, store.RefreshToken{}, fmt.Errorf("%w: invalid ledger script response", store.ErrUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return 0, store.RefreshToken{}, fmt.Errorf("%w: invalid ledger script status", store.ErrUnavailable)
	}
	if len(parts) < 8 {
		return code, store.RefreshToken{}, nil
	}

	vals := make([]string, 7)
	for i := range vals {
		switch v := parts[i+1].(type) {
		case string:
			vals[i] = v
		case []byte:
			vals[i] = string(v)
		}
	}
	t, err := fromHash(map[string]string{
		"id":         vals[0],
		"account_id": vals[1],
		"token_hash": vals[2],
		"created_at": vals[3],
		"expires_at": vals[4],
		"revoked":    vals[5],
		"revoked_at": vals[6],
	})
	return code, t, err
}

func fromHash(f map[string]string) (store.RefreshToken, error) {
	created, err := parseMillis(f["created_at"])
	if err != nil {
		return store.RefreshToken{}, err
	}
	expires, err := parseMillis(f["expires_at"])
	if err != nil {
		return store.RefreshToken{}, err
	}
	t := store.RefreshToken{
		ID:        f["id"],
		AccountID: f["account_id"],
		TokenHash: f["token_hash"],
		CreatedAt: created,
		ExpiresAt: expires,
		Revoked:   f["revoked"] == "1",
	}
	if raw := f["revoked_at"]; raw != "" {
		at, err := parseMillis(raw)
		if err != nil {
			return store.RefreshToken{}, err
		}
		t.RevokedAt = &at
	}
	return t, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: corrupt ledger timestamp %q", store.ErrUnavailable, raw)
	}
	return time.UnixMilli(ms).UTC(), nil
}

package redisledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLedgerTest(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	return newLedgerWithRetention(t, 0)
}

func newLedgerWithRetention(t *testing.T, retention time.Duration) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test", retention), mr
}

func activeRow(id, account, hash string, now time.Time) store.RefreshToken {
	return store.RefreshToken{
		ID:        id,
		AccountID: account,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

func TestInsertAndLookup(t *testing.T) {
	l, mr := newLedgerTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, l.InsertRefreshToken(ctx, activeRow("t1", "acct-1", "h1", now)))
	require.ErrorIs(t, l.InsertRefreshToken(ctx, activeRow("t9", "acct-1", "h1", now)), store.ErrConflict)

	got, err := l.RefreshTokenByHash(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, "t1", got.ID)
	require.Equal(t, "acct-1", got.AccountID)
	require.True(t, got.CreatedAt.Equal(now))
	require.False(t, got.Revoked)
	require.Nil(t, got.RevokedAt)

	require.True(t, mr.Exists("test:rt:h1"))
	require.Zero(t, mr.TTL("test:rt:h1"), "rows carry no expiry by default")

	_, err = l.RefreshTokenByHash(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRotateMarksPriorAndInsertsSuccessor(t *testing.T) {
	l, _ := newLedgerTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, l.InsertRefreshToken(ctx, activeRow("t1", "acct-1", "h1", now)))

	prior, err := l.RotateRefreshToken(ctx, "h1", activeRow("t2", "", "h2", now), now)
	require.NoError(t, err)
	require.True(t, prior.Revoked)
	require.NotNil(t, prior.RevokedAt)
	require.True(t, prior.RevokedAt.Equal(now))

	next, err := l.RefreshTokenByHash(ctx, "h2")
	require.NoError(t, err)
	require.Equal(t, "acct-1", next.AccountID)
	require.False(t, next.Revoked)

	_, err = l.RotateRefreshToken(ctx, "h1", activeRow("t3", "", "h3", now), now)
	require.ErrorIs(t, err, store.ErrTokenRevoked)

	_, err = l.RotateRefreshToken(ctx, "nope", activeRow("t4", "", "h4", now), now)
	require.ErrorIs(t, err, store.ErrNotFound)

	rows, err := l.RefreshTokensForAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "t1", rows[0].ID)
}

func TestRotateExpiredIsUntouched(t *testing.T) {
	l, _ := newLedgerTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	row := activeRow("t1", "acct-1", "h1", now.Add(-2*time.Hour))
	row.ExpiresAt = now.Add(-time.Minute)
	require.NoError(t, l.InsertRefreshToken(ctx, row))

	_, err := l.RotateRefreshToken(ctx, "h1", activeRow("t2", "", "h2", now), now)
	require.ErrorIs(t, err, store.ErrTokenExpired)

	got, err := l.RefreshTokenByHash(ctx, "h1")
	require.NoError(t, err)
	require.False(t, got.Revoked)
	_, err = l.RefreshTokenByHash(ctx, "h2")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	l, _ := newLedgerTest(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, l.InsertRefreshToken(ctx, activeRow("t0", "acct-1", "h0", now)))

	var wins, revoked atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := activeRow(fmt.Sprintf("n%d", i), "", fmt.Sprintf("h-next-%d", i), now)
			_, err := l.RotateRefreshToken(ctx, "h0", next, now)
			switch {
			case err == nil:
				wins.Add(1)
			case err == store.ErrTokenRevoked:
				revoked.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(15), revoked.Load())
}

func TestRevokeKeepsFirstTimestamp(t *testing.T) {
	l, _ := newLedgerTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, l.InsertRefreshToken(ctx, activeRow("t1", "acct-1", "h1", now)))

	first, err := l.RevokeRefreshToken(ctx, "h1", now)
	require.NoError(t, err)
	second, err := l.RevokeRefreshToken(ctx, "h1", now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, second.Revoked)
	require.True(t, first.RevokedAt.Equal(*second.RevokedAt))

	_, err = l.RevokeRefreshToken(ctx, "nope", now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRevokeAllScopedAndCounted(t *testing.T) {
	l, mr := newLedgerTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, l.InsertRefreshToken(ctx, activeRow("a1", "acct-a", "ha1", now)))
	require.NoError(t, l.InsertRefreshToken(ctx, activeRow("a2", "acct-a", "ha2", now)))
	require.NoError(t, l.InsertRefreshToken(ctx, activeRow("a3", "acct-a", "ha3", now)))
	require.NoError(t, l.InsertRefreshToken(ctx, activeRow("b1", "acct-b", "hb1", now)))
	_, err := l.RevokeRefreshToken(ctx, "ha1", now)
	require.NoError(t, err)
	mr.Del("test:rt:ha3")

	n, err := l.RevokeAllRefreshTokens(ctx, "acct-a", now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := l.RefreshTokensForAccount(ctx, "acct-a")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.True(t, r.Revoked)
	}
	other, err := l.RefreshTokenByHash(ctx, "hb1")
	require.NoError(t, err)
	require.False(t, other.Revoked)

	n, err = l.RevokeAllRefreshTokens(ctx, "nobody", now)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestUnavailableWrapsStoreError(t *testing.T) {
	l, mr := newLedgerTest(t)
	mr.Close()
	_, err := l.RefreshTokenByHash(context.Background(), "h1")
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestRowsSurvivePastExpiry(t *testing.T) {
	l, mr := newLedgerTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	short := func(id, hash string) store.RefreshToken {
		row := activeRow(id, "acct-1", hash, now)
		row.ExpiresAt = now.Add(time.Minute)
		return row
	}
	require.NoError(t, l.InsertRefreshToken(ctx, short("t1", "h1")))
	require.NoError(t, l.InsertRefreshToken(ctx, short("t2", "h2")))
	revoked, err := l.RevokeRefreshToken(ctx, "h1", now)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	later := now.Add(2 * time.Hour)

	got, err := l.RefreshTokenByHash(ctx, "h1")
	require.NoError(t, err)
	require.True(t, got.Revoked)

	again, err := l.RevokeRefreshToken(ctx, "h1", later)
	require.NoError(t, err, "logout of a revoked row stays idempotent")
	require.True(t, again.RevokedAt.Equal(*revoked.RevokedAt))

	_, err = l.RotateRefreshToken(ctx, "h2", activeRow("t3", "", "h3", later), later)
	require.ErrorIs(t, err, store.ErrTokenExpired)

	rows, err := l.RefreshTokensForAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestExplicitRetentionEvicts(t *testing.T) {
	l, mr := newLedgerWithRetention(t, time.Hour)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, l.InsertRefreshToken(ctx, activeRow("t1", "acct-1", "h1", now)))
	require.Greater(t, mr.TTL("test:rt:h1"), 24*time.Hour)

	mr.FastForward(26 * time.Hour)
	_, err := l.RefreshTokenByHash(ctx, "h1")
	require.ErrorIs(t, err, store.ErrNotFound)

	n, err := l.RevokeAllRefreshTokens(ctx, "acct-1", now)
	require.NoError(t, err)
	require.Zero(t, n)
	require.False(t, mr.Exists("test:rta:acct-1"), "evicted members leave the account set")
}

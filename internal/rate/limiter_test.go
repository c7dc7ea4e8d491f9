package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestLoginBudgetAndReset(t *testing.T) {
	l, _ := newLimiterTest(t, Config{
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "a@x.io", ""); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i, err)
		}
		_ = l.IncrementLogin(ctx, "a@x.io", "")
	}
	if err := l.CheckLogin(ctx, "a@x.io", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "b@x.io", ""); err != nil {
		t.Fatalf("other email limited: %v", err)
	}

	if err := l.ResetLogin(ctx, "a@x.io", ""); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := l.LoginAttempts(ctx, "a@x.io"); n != 0 {
		t.Fatalf("attempts after reset = %d", n)
	}
}

func TestLoginIPThrottle(t *testing.T) {
	l, _ := newLimiterTest(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@x.io", "10.0.0.1")
	_ = l.IncrementLogin(ctx, "b@x.io", "10.0.0.1")
	if err := l.CheckLogin(ctx, "c@x.io", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP budget to be exhausted, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@x.io", "10.0.0.2"); err != nil {
		t.Fatalf("other IP limited: %v", err)
	}
}

func TestLoginWindowExpires(t *testing.T) {
	l, mr := newLimiterTest(t, Config{
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@x.io", "")
	if err := l.CheckLogin(ctx, "a@x.io", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if err := l.CheckLogin(ctx, "a@x.io", ""); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestRefreshThrottle(t *testing.T) {
	l, _ := newLimiterTest(t, Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      2,
		RefreshCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckRefresh(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("refresh %d limited: %v", i, err)
		}
	}
	if err := l.CheckRefresh(ctx, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected refresh limit, got %v", err)
	}

	off := New(l.redis, Config{})
	if err := off.CheckRefresh(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("disabled throttle returned %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	mr.Close()
	if err := l.CheckLogin(context.Background(), "a@x.io", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestLimitedErrorCarriesScopeAndRetryAfter(t *testing.T) {
	l, mr := newLimiterTest(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@x.io", "10.0.0.9")
	mr.FastForward(20 * time.Second)
	_ = l.IncrementLogin(ctx, "b@x.io", "10.0.0.9")

	err := l.CheckLogin(ctx, "c@x.io", "10.0.0.9")
	var le *LimitedError
	if !errors.As(err, &le) || le.Scope != ScopeIP {
		t.Fatalf("expected ip-scoped LimitedError, got %v", err)
	}
	if got := RetryAfter(err); got <= 0 || got > 40*time.Second {
		t.Fatalf("retry after = %s, want the window remainder of at most 40s", got)
	}
	if RetryAfter(ErrRedisUnavailable) != 0 {
		t.Fatal("non-limit errors carry no retry hint")
	}
}

func TestIncrementReportsExhaustion(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	if err := l.IncrementLogin(ctx, "a@x.io", ""); err != nil {
		t.Fatalf("first failure over budget: %v", err)
	}
	err := l.IncrementLogin(ctx, "a@x.io", "")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var le *LimitedError
	if !errors.As(err, &le) || le.Scope != ScopeEmail {
		t.Fatalf("expected email scope, got %v", err)
	}
}

func TestWindowSetOnFirstHitOnly(t *testing.T) {
	l, mr := newLimiterTest(t, Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      10,
		RefreshCooldownDuration: time.Minute,
	})
	ctx := context.Background()
	key := "authcore:ar:10.0.0.1"

	if err := l.CheckRefresh(ctx, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Fatalf("ttl after first hit = %s", ttl)
	}
	mr.FastForward(30 * time.Second)
	if err := l.CheckRefresh(ctx, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(key); ttl != 30*time.Second {
		t.Fatalf("second hit moved the window: ttl = %s", ttl)
	}
}

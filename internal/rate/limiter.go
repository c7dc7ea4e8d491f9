package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the login and refresh budgets.
type Config struct {
	Prefix                  string
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// KEYS[1] counter. ARGV[1] window in ms. Returns {count, pttl_ms}; the
// window starts on the first hit and is never extended.
var hitLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// KEYS: counters. Returns {count, pttl_ms} per key, 0/-2 for missing keys.
var peekLua = redis.NewScript(`
local out = {}
for i, key in ipairs(KEYS) do
  local v = redis.call("GET", key)
  if v then
    out[2*i-1] = tonumber(v)
    out[2*i] = redis.call("PTTL", key)
  else
    out[2*i-1] = 0
    out[2*i] = -2
  end
end
return out
`)

// Limiter keeps fixed-window failure counters for login (per email, and per
// IP when enabled) and attempt counters for refresh.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "authcore"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

type counter struct {
	scope Scope
	key   string
}

func (l *Limiter) loginCounters(email, ip string) []counter {
	cs := []counter{{ScopeEmail, l.config.Prefix + ":al:" + email}}
	if l.config.EnableIPThrottle && ip != "" {
		cs = append(cs, counter{ScopeIP, l.config.Prefix + ":ali:" + ip})
	}
	return cs
}

func (l *Limiter) refreshCounter(subject string) counter {
	return counter{ScopeRefresh, l.config.Prefix + ":ar:" + subject}
}

// CheckLogin returns a *LimitedError when any login counter has reached
// MaxLoginAttempts. It reads both counters in one round trip and does not
// count the attempt.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	cs := l.loginCounters(email, ip)
	keys := make([]string, len(cs))
	for i, c := range cs {
		keys[i] = c.key
	}

	vals, err := peekLua.Run(ctx, l.redis, keys).Int64Slice()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) != 2*len(cs) {
		return fmt.Errorf("%w: peek returned %d values", ErrRedisUnavailable, len(vals))
	}
	for i, c := range cs {
		if vals[2*i] >= int64(l.config.MaxLoginAttempts) {
			return limited(c.scope, vals[2*i+1])
		}
	}
	return nil
}

// IncrementLogin records a failed login against every login counter and
// reports a *LimitedError when this failure exhausted a budget.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	var over error
	for _, c := range l.loginCounters(email, ip) {
		count, pttl, err := l.hit(ctx, c.key, l.config.LoginCooldownDuration)
		if err != nil {
			return err
		}
		if over == nil && count > int64(l.config.MaxLoginAttempts) {
			over = limited(c.scope, pttl)
		}
	}
	return over
}

// ResetLogin clears the failure counters after a successful login or
// password change.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	cs := l.loginCounters(email, ip)
	keys := make([]string, len(cs))
	for i, c := range cs {
		keys[i] = c.key
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckRefresh counts one refresh attempt for subject (client IP, or token
// hash when the IP is unknown) and reports whether it is over budget.
func (l *Limiter) CheckRefresh(ctx context.Context, subject string) error {
	if !l.config.EnableRefreshThrottle || subject == "" {
		return nil
	}
	c := l.refreshCounter(subject)
	count, pttl, err := l.hit(ctx, c.key, l.config.RefreshCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return limited(c.scope, pttl)
	}
	return nil
}

// LoginAttempts returns the current failure count for email. A missing
// counter reads as zero, so the answer does not reveal whether the account
// exists.
func (l *Limiter) LoginAttempts(ctx context.Context, email string) (int, error) {
	vals, err := peekLua.Run(ctx, l.redis, []string{l.loginCounters(email, "")[0].key}).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) < 1 || vals[0] < 0 {
		return 0, nil
	}
	return int(vals[0]), nil
}

func (l *Limiter) hit(ctx context.Context, key string, window time.Duration) (count, pttl int64, err error) {
	vals, err := hitLua.Run(ctx, l.redis, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("%w: hit returned %d values", ErrRedisUnavailable, len(vals))
	}
	return vals[0], vals[1], nil
}

func limited(scope Scope, pttlMillis int64) *LimitedError {
	e := &LimitedError{Scope: scope}
	if pttlMillis > 0 {
		e.RetryAfter = time.Duration(pttlMillis) * time.Millisecond
	}
	return e
}

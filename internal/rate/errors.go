package rate

import (
	"errors"
	"time"
)

var (
	// ErrRateLimited is matched by every *LimitedError.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Scope names the counter that ran out.
type Scope string

const (
	ScopeEmail   Scope = "email"
	ScopeIP      Scope = "ip"
	ScopeRefresh Scope = "refresh"
)

// LimitedError reports an exhausted budget and how long until its window
// resets.
type LimitedError struct {
	Scope      Scope
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return "rate limited: " + string(e.Scope)
}

func (e *LimitedError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfter extracts the window remainder from err, or 0.
func RetryAfter(err error) time.Duration {
	var le *LimitedError
	if errors.As(err, &le) {
		return le.RetryAfter
	}
	return 0
}

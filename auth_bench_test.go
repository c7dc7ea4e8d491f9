package authcore

import (
	"context"
	"testing"
)

func BenchmarkVerifyAccessToken(b *testing.B) {
	engine := newBenchmarkEngine(b)

	pair, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.VerifyAccessToken(context.Background(), pair.AccessToken); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkRotate(b *testing.B) {
	engine := newBenchmarkEngine(b)

	pair, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}
	refresh := pair.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := engine.Rotate(context.Background(), refresh)
		if err != nil {
			b.Fatalf("rotate failed: %v", err)
		}
		refresh = next.RefreshToken
	}
}

func BenchmarkLogin(b *testing.B) {
	engine := newBenchmarkEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
		if err != nil {
			b.Fatalf("login failed: %v", err)
		}
		_ = engine.Logout(context.Background(), pair.RefreshToken)
	}
}

func newBenchmarkEngine(tb testing.TB) *Engine {
	tb.Helper()
	engine, _ := newThrottledEngine(tb, func(c *Config) {
		c.Metrics.Enabled = false
		c.Audit.Enabled = false
		c.Security.EnableRefreshThrottle = false
	})
	return engine
}

// Command authload drives the engine with concurrent rotation attempts on
// shared refresh tokens and checks that every token has exactly one winner.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/rbac"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/redisledger"
)

const loadPassword = "load-test-password-1"

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts to register")
		contenders  = flag.Int("contenders", 8, "concurrent rotations per refresh token")
		rounds      = flag.Int("rounds", 20, "rotation rounds per account")
		concurrency = flag.Int("concurrency", 64, "workers for the verify phase")
		ops         = flag.Int("ops", 100000, "access-token verifications")
		ledger      = flag.String("ledger", "memory", "refresh ledger: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *contenders <= 1 || *rounds <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, rounds, concurrency and ops must be > 0; contenders must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()
	engine, cleanup, err := buildEngine(ctx, *ledger, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	fmt.Printf("registering %d accounts...\n", *accounts)
	startSeed := time.Now()
	pairs := make([]*authcore.TokenPair, *accounts)
	for i := range pairs {
		email := fmt.Sprintf("load-%d@example.com", i)
		if _, err := engine.Register(ctx, authcore.RegisterRequest{Email: email, Password: loadPassword, FirstName: "Load", LastName: "Test"}); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		pair, err := engine.Login(ctx, email, loadPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		pairs[i] = pair
	}
	fmt.Printf("registered in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runVerifyPhase(ctx, engine, pairs, *ops, *concurrency)
	rotateStats, violations := runRotatePhase(ctx, engine, pairs, *rounds, *contenders)

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("rotate", rotateStats)
	if violations > 0 {
		fmt.Printf("FAIL: %d rotation rounds without exactly one winner\n", violations)
		os.Exit(1)
	}
	fmt.Println("single-winner rotation held for every round")
}

func buildEngine(ctx context.Context, ledger, redisAddr string) (*authcore.Engine, func(), error) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = []byte("authload-signing-secret-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := memory.New()
	b := authcore.New().WithConfig(cfg).WithStore(mem).WithLogger(quiet).WithMetricsEnabled(true)

	cleanup := func() {}
	if ledger == "redis" {
		addr := redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		var mr *miniredis.Miniredis
		if addr == "" {
			var err error
			mr, err = miniredis.Run()
			if err != nil {
				return nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			fmt.Printf("using redis at %s\n", addr)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		b = b.WithLedger(redisledger.New(client, "authload", 0))
		cleanup = func() {
			_ = client.Close()
			if mr != nil {
				mr.Close()
			}
		}
	}

	engine, err := b.Build()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err := rbac.Seed(ctx, mem, rbac.DefaultCatalog(), rbac.SeedOptions{Logger: quiet}); err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, func() { engine.Close(); cleanup() }, nil
}

func runVerifyPhase(ctx context.Context, engine *authcore.Engine, pairs []*authcore.TokenPair, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				token := pairs[r.Intn(len(pairs))].AccessToken
				t0 := time.Now()
				_, err := engine.VerifyAccessToken(ctx, token)
				local = append(local, time.Since(t0))
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runRotatePhase races contenders goroutines on the same refresh token for
// every account and round. Exactly one must succeed and the rest must see
// a revoked-token rejection.
func runRotatePhase(ctx context.Context, engine *authcore.Engine, pairs []*authcore.TokenPair, rounds, contenders int) (phaseStats, int64) {
	var (
		failures   int64
		violations int64
		latencies  []time.Duration
		mu         sync.Mutex
	)

	start := time.Now()
	for round := 0; round < rounds; round++ {
		var outer sync.WaitGroup
		for i := range pairs {
			outer.Add(1)
			go func(i int) {
				defer outer.Done()
				current := pairs[i].RefreshToken

				var (
					wg      sync.WaitGroup
					winners int64
					next    atomic.Pointer[authcore.TokenPair]
					local   = make([]time.Duration, contenders)
				)
				gate := make(chan struct{})
				for c := 0; c < contenders; c++ {
					wg.Add(1)
					go func(c int) {
						defer wg.Done()
						<-gate
						t0 := time.Now()
						pair, err := engine.Rotate(ctx, current)
						local[c] = time.Since(t0)
						switch {
						case err == nil:
							atomic.AddInt64(&winners, 1)
							next.Store(pair)
						case authcore.TokenReasonOf(err) == authcore.ReasonRevoked:
						default:
							atomic.AddInt64(&failures, 1)
						}
					}(c)
				}
				close(gate)
				wg.Wait()

				if winners != 1 {
					atomic.AddInt64(&violations, 1)
				}
				if p := next.Load(); p != nil {
					pairs[i] = p
				}
				mu.Lock()
				latencies = append(latencies, local...)
				mu.Unlock()
			}(i)
		}
		outer.Wait()
	}
	return computeStats(time.Since(start), latencies, failures), violations
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

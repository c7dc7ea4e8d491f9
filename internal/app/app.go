package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpapi"
	otelexport "github.com/MrEthical07/authcore/metrics/export/otel"
	"github.com/MrEthical07/authcore/rbac"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/MrEthical07/authcore/store/redisledger"
)

// App owns the engine, its backends and the HTTP handler.
type App struct {
	cfg Config
	log *slog.Logger

	credentials store.CredentialStore
	pg          *postgres.Store
	redis       redis.UniversalClient

	engine *authcore.Engine
	api    *httpapi.API
	otel   *otelexport.Exporter
}

const meterName = "github.com/MrEthical07/authcore"

// New opens the configured backends and builds the engine. The memory
// driver is seeded with the default catalog immediately.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	}
	a := &App{cfg: cfg, log: log}

	core := cfg.Engine()
	b := authcore.New().WithConfig(core).WithLogger(log)

	switch cfg.Store.Driver {
	case "postgres":
		var opts []postgres.Option
		if cfg.Store.Schema != "" {
			opts = append(opts, postgres.WithSchema(cfg.Store.Schema))
		}
		pg, err := postgres.Open(cfg.Store.DSN, postgres.DefaultPoolConfig(), opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pg.DB().PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.pg = pg
		a.credentials = pg
		b = b.WithStore(pg)
	default:
		mem := memory.New()
		a.credentials = mem
		b = b.WithStore(mem)
	}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b = b.WithRedis(a.redis)
		if cfg.Store.Ledger == "redis" {
			b = b.WithLedger(redisledger.New(a.redis, core.Security.RedisPrefix, cfg.Store.LedgerRetention))
		}
	}

	switch cfg.Audit.Sink {
	case "slog":
		b = b.WithAuditSink(authcore.NewSlogSink(log.With("component", "audit")))
	case "json":
		b = b.WithAuditSink(authcore.NewJSONWriterSink(os.Stdout))
	}

	engine, err := b.Build()
	if err != nil {
		a.closeBackends()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine

	// Observed through whatever MeterProvider the process installs globally;
	// a no-op until one is set.
	a.otel, err = otelexport.NewExporter(otel.Meter(meterName), engine)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register otel metrics: %w", err)
	}

	if cfg.Store.Driver == "memory" {
		if _, err := a.Seed(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.api = httpapi.New(engine, httpapi.Options{
		Logger: log,
		Cookie: httpapi.CookieConfig{
			Name:   cfg.Cookie.Name,
			Path:   cfg.Cookie.Path,
			Domain: cfg.Cookie.Domain,
			Secure: cfg.Cookie.Secure,
		},
		RateLimit: httpapi.RateLimitConfig{
			PerSecond: cfg.Server.RateLimitPerSecond,
			Burst:     cfg.Server.RateLimitBurst,
		},
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		Version:           Version,
	})
	return a, nil
}

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Engine exposes the engine for tooling and tests.
func (a *App) Engine() *authcore.Engine { return a.engine }

func (a *App) Handler() http.Handler { return a.api.Handler() }

// Migrate applies the embedded Postgres migrations.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if a.pg == nil {
		return nil, errors.New("migrations require the postgres driver")
	}
	applied, err := a.pg.Migrate(ctx)
	if err != nil {
		return applied, err
	}
	a.log.InfoContext(ctx, "store.migrate.ok", "applied", len(applied))
	return applied, nil
}

// Seed creates the catalog roles and permissions and, when configured, the
// bootstrap administrator.
func (a *App) Seed(ctx context.Context) (rbac.SeedReport, error) {
	opts := rbac.SeedOptions{Logger: a.log}
	if a.cfg.Admin.Email != "" {
		opts.Admin = &rbac.Admin{
			Email:     a.cfg.Admin.Email,
			Password:  a.cfg.Admin.Password,
			FirstName: a.cfg.Admin.FirstName,
			LastName:  a.cfg.Admin.LastName,
		}
		opts.Hasher = a.engine.PasswordHasher()
	}
	report, err := rbac.Seed(ctx, a.credentials, rbac.DefaultCatalog(), opts)
	if err != nil {
		return report, fmt.Errorf("seed: %w", err)
	}
	return report, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	s := a.cfg.Server
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: s.ReadHeaderTimeout,
		ReadTimeout:       s.ReadTimeout,
		WriteTimeout:      s.WriteTimeout,
		IdleTimeout:       s.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	a.log.Info("server.start", "addr", s.Addr, "store", a.cfg.Store.Driver, "ledger", a.cfg.Store.Ledger, "throttle", a.redis != nil)
	a.logSecurityReport()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func (a *App) logSecurityReport() {
	r := a.engine.SecurityReport()
	a.log.Info("security.report",
		"algorithm", r.SigningAlgorithm,
		"access_ttl", r.AccessTTL.String(),
		"refresh_ttl", r.RefreshTTL.String(),
		"argon2_memory_kib", r.Argon2.Memory,
		"login_throttle", r.LoginThrottleActive,
		"refresh_throttle", r.RefreshThrottleActive,
		"conceal_unknown_accounts", r.ConcealUnknownAccounts,
	)
	for _, w := range r.Warnings {
		a.log.Warn("security.report.warning", "warning", w)
	}
}

// Close flushes audit events and releases backends.
func (a *App) Close() {
	if a.otel != nil {
		if err := a.otel.Close(); err != nil {
			a.log.Warn("otel.close.fail", "err", err)
		}
	}
	if a.engine != nil {
		a.engine.Close()
	}
	a.closeBackends()
}

func (a *App) closeBackends() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.log.Warn("store.close.fail", "err", err)
		}
	}
}

package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config

	credentials store.CredentialStore
	ledger      store.RefreshLedger
	redis       redis.UniversalClient

	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder starting from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets s as both credential store and refresh ledger.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.credentials = s
	b.ledger = s
	return b
}

func (b *Builder) WithCredentialStore(cs store.CredentialStore) *Builder {
	b.credentials = cs
	return b
}

func (b *Builder) WithLedger(l store.RefreshLedger) *Builder {
	b.ledger = l
	return b
}

// WithRedis enables the login and refresh throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for issuance, rotation and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.ledger == nil {
		l, ok := b.credentials.(store.RefreshLedger)
		if !ok {
			return nil, errors.New("refresh ledger required")
		}
		b.ledger = l
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		credentials: b.credentials,
		ledger:      b.ledger,
		logger:      logger,
		now:         now,
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:                  cfg.Security.RedisPrefix,
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
	}
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jc := cfg.jwtConfig()
	jc.Secret = cloneBytes(jc.Secret)
	jc.Now = now
	jm, err := jwt.NewManager(jc)
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		MustDeliver: []string{auditEventRefreshReuseDetected},
		Logger:      logger,
		Now:         now,
	}, b.auditSink)

	b.built = true

	return engine, nil
}

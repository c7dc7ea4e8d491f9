package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/MrEthical07/authcore"
)

// Config is the process configuration of authd. It is decoded from TOML over
// Default() and then overridden from AUTHCORE_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	JWT      JWTConfig      `toml:"jwt"`
	Refresh  RefreshConfig  `toml:"refresh"`
	Cookie   CookieConfig   `toml:"cookie"`
	Store    StoreConfig    `toml:"store"`
	Redis    RedisConfig    `toml:"redis"`
	Security SecurityConfig `toml:"security"`
	Account  AccountConfig  `toml:"account"`
	Admin    AdminConfig    `toml:"admin"`
	Audit    AuditConfig    `toml:"audit"`
}

type ServerConfig struct {
	Addr               string        `toml:"addr"`
	ReadHeaderTimeout  time.Duration `toml:"read_header_timeout"`
	ReadTimeout        time.Duration `toml:"read_timeout"`
	WriteTimeout       time.Duration `toml:"write_timeout"`
	IdleTimeout        time.Duration `toml:"idle_timeout"`
	ShutdownTimeout    time.Duration `toml:"shutdown_timeout"`
	TrustProxyHeaders  bool          `toml:"trust_proxy_headers"`
	RateLimitPerSecond float64       `toml:"rate_limit_per_second"`
	RateLimitBurst     int           `toml:"rate_limit_burst"`
	MaxBodyBytes       int64         `toml:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type JWTConfig struct {
	Secret           string `toml:"secret"`
	AccessTTLMinutes int    `toml:"access_ttl_minutes"`
	Algorithm        string `toml:"algorithm"`
	Issuer           string `toml:"issuer"`
	Audience         string `toml:"audience"`
}

type RefreshConfig struct {
	TTLDays int `toml:"refresh_ttl_days"`
}

type CookieConfig struct {
	Name   string `toml:"name"`
	Path   string `toml:"path"`
	Domain string `toml:"domain"`
	Secure bool   `toml:"secure"`
}

// StoreConfig selects the persistence backends. Driver is "memory" or
// "postgres"; Ledger is "store" (same backend as accounts) or "redis".
type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	Schema string `toml:"schema"`
	Ledger string `toml:"ledger"`
	// LedgerRetention lets Redis evict refresh rows this long after expiry.
	// Zero keeps them.
	LedgerRetention time.Duration `toml:"ledger_retention"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type SecurityConfig struct {
	MaxLoginAttempts      int           `toml:"max_login_attempts"`
	LoginCooldown         time.Duration `toml:"login_cooldown"`
	EnableRefreshThrottle bool          `toml:"enable_refresh_throttle"`
	MaxRefreshAttempts    int           `toml:"max_refresh_attempts"`
	RefreshCooldown       time.Duration `toml:"refresh_cooldown"`
}

type AccountConfig struct {
	DefaultRole                    string `toml:"default_role"`
	ConcealUnknownAccounts         bool   `toml:"conceal_unknown_accounts"`
	RevokeSessionsOnPasswordChange bool   `toml:"revoke_sessions_on_password_change"`
}

// AdminConfig describes the bootstrap administrator created by -seed.
type AdminConfig struct {
	Email     string `toml:"email"`
	Password  string `toml:"password"`
	FirstName string `toml:"first_name"`
	LastName  string `toml:"last_name"`
}

type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Sink    string `toml:"sink"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	core := authcore.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:               ":8080",
			ReadHeaderTimeout:  5 * time.Second,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			IdleTimeout:        60 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			MaxBodyBytes:       1 << 20,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		JWT: JWTConfig{
			AccessTTLMinutes: int(core.JWT.AccessTTL / time.Minute),
			Algorithm:        core.JWT.Algorithm,
		},
		Refresh: RefreshConfig{TTLDays: int(core.Refresh.TTL / (24 * time.Hour))},
		Cookie:  CookieConfig{Name: "refreshToken", Path: "/api/v1/auth", Secure: true},
		Store:   StoreConfig{Driver: "memory", Ledger: "store"},
		Security: SecurityConfig{
			MaxLoginAttempts:      core.Security.MaxLoginAttempts,
			LoginCooldown:         core.Security.LoginCooldownDuration,
			EnableRefreshThrottle: core.Security.EnableRefreshThrottle,
			MaxRefreshAttempts:    core.Security.MaxRefreshAttempts,
			RefreshCooldown:       core.Security.RefreshCooldownDuration,
		},
		Account: AccountConfig{
			DefaultRole:                    core.Account.DefaultRole,
			RevokeSessionsOnPasswordChange: core.Account.RevokeSessionsOnPasswordChange,
		},
		Audit: AuditConfig{Enabled: true, Sink: "slog"},
	}
}

// LoadConfig decodes path (when non-empty) over Default, applies environment
// overrides and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
		}
	}
	applyEnv(&cfg)
	if err := cfg.resolveSecret(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Server.Addr = EnvString("AUTHCORE_ADDR", c.Server.Addr)
	c.Server.ShutdownTimeout = EnvDuration("AUTHCORE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.TrustProxyHeaders = EnvBool("AUTHCORE_TRUST_PROXY_HEADERS", c.Server.TrustProxyHeaders)
	c.Server.RateLimitPerSecond = EnvFloat("AUTHCORE_RATE_LIMIT_PER_SECOND", c.Server.RateLimitPerSecond)
	c.Server.RateLimitBurst = EnvInt("AUTHCORE_RATE_LIMIT_BURST", c.Server.RateLimitBurst)

	c.Log.Level = EnvString("AUTHCORE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = EnvString("AUTHCORE_LOG_FORMAT", c.Log.Format)

	c.JWT.Secret = EnvString("AUTHCORE_JWT_SECRET", c.JWT.Secret)
	c.JWT.AccessTTLMinutes = EnvInt("AUTHCORE_ACCESS_TTL_MINUTES", c.JWT.AccessTTLMinutes)
	c.JWT.Algorithm = EnvString("AUTHCORE_JWT_ALGORITHM", c.JWT.Algorithm)
	c.JWT.Issuer = EnvString("AUTHCORE_JWT_ISSUER", c.JWT.Issuer)
	c.JWT.Audience = EnvString("AUTHCORE_JWT_AUDIENCE", c.JWT.Audience)
	c.Refresh.TTLDays = EnvInt("AUTHCORE_REFRESH_TTL_DAYS", c.Refresh.TTLDays)

	c.Cookie.Secure = EnvBool("AUTHCORE_COOKIE_SECURE", c.Cookie.Secure)
	c.Cookie.Domain = EnvString("AUTHCORE_COOKIE_DOMAIN", c.Cookie.Domain)

	c.Store.Driver = EnvString("AUTHCORE_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = EnvString("AUTHCORE_DATABASE_URL", c.Store.DSN)
	c.Store.Schema = EnvString("AUTHCORE_DATABASE_SCHEMA", c.Store.Schema)
	c.Store.Ledger = EnvString("AUTHCORE_LEDGER", c.Store.Ledger)
	c.Store.LedgerRetention = EnvDuration("AUTHCORE_LEDGER_RETENTION", c.Store.LedgerRetention)

	c.Redis.Addr = EnvString("AUTHCORE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = EnvString("AUTHCORE_REDIS_PASSWORD", c.Redis.Password)

	c.Account.ConcealUnknownAccounts = EnvBool("AUTHCORE_CONCEAL_UNKNOWN_ACCOUNTS", c.Account.ConcealUnknownAccounts)

	c.Admin.Email = EnvString("AUTHCORE_ADMIN_EMAIL", c.Admin.Email)
	c.Admin.Password = EnvString("AUTHCORE_ADMIN_PASSWORD", c.Admin.Password)

	c.Audit.Enabled = EnvBool("AUTHCORE_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.Sink = EnvString("AUTHCORE_AUDIT_SINK", c.Audit.Sink)
}

// Validate checks the process-level settings. Engine settings are checked
// again by authcore.Config.Validate.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Store.Ledger {
	case "store":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis ledger")
		}
	default:
		return fmt.Errorf("unknown store.ledger %q", c.Store.Ledger)
	}
	if c.Store.LedgerRetention < 0 {
		return errors.New("store.ledger_retention must be >= 0")
	}
	switch c.Audit.Sink {
	case "slog", "json", "none":
	default:
		return fmt.Errorf("unknown audit.sink %q", c.Audit.Sink)
	}
	if c.JWT.AccessTTLMinutes <= 0 {
		return errors.New("jwt.access_ttl_minutes must be > 0")
	}
	if c.Refresh.TTLDays <= 0 {
		return errors.New("refresh.refresh_ttl_days must be > 0")
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return errors.New("admin.email and admin.password must be set together")
	}
	core := c.Engine()
	return core.Validate()
}

// Engine derives the library configuration.
func (c Config) Engine() authcore.Config {
	core := authcore.DefaultConfig()

	core.JWT.Secret = []byte(c.JWT.Secret)
	core.JWT.AccessTTL = time.Duration(c.JWT.AccessTTLMinutes) * time.Minute
	if c.JWT.Algorithm != "" {
		core.JWT.Algorithm = c.JWT.Algorithm
	}
	core.JWT.Issuer = c.JWT.Issuer
	core.JWT.Audience = c.JWT.Audience
	core.Refresh.TTL = time.Duration(c.Refresh.TTLDays) * 24 * time.Hour

	core.Security.MaxLoginAttempts = c.Security.MaxLoginAttempts
	core.Security.LoginCooldownDuration = c.Security.LoginCooldown
	core.Security.EnableRefreshThrottle = c.Security.EnableRefreshThrottle
	core.Security.MaxRefreshAttempts = c.Security.MaxRefreshAttempts
	core.Security.RefreshCooldownDuration = c.Security.RefreshCooldown

	if c.Account.DefaultRole != "" {
		core.Account.DefaultRole = c.Account.DefaultRole
	}
	core.Account.ConcealUnknownAccounts = c.Account.ConcealUnknownAccounts
	core.Account.RevokeSessionsOnPasswordChange = c.Account.RevokeSessionsOnPasswordChange

	core.Audit.Enabled = c.Audit.Enabled && c.Audit.Sink != "none"
	core.Metrics.Enabled = true
	core.Metrics.EnableLatencyHistograms = true
	return core
}

// resolveSecret loads the signing secret from a file when the configured
// value has the form "file:/path".
func (c *Config) resolveSecret() error {
	path, ok := strings.CutPrefix(c.JWT.Secret, "file:")
	if !ok {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read jwt secret: %w", err)
	}
	c.JWT.Secret = strings.TrimSpace(string(raw))
	return nil
}

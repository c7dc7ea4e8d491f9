package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/rbac"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Password PasswordConfig
	Account  AccountConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token issuance. Secret is the HMAC key and must
// hold at least 32 bytes.
type JWTConfig struct {
	AccessTTL time.Duration
	Algorithm string // "HS256" (default), "HS384", "HS512"
	Secret    []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration

	// KeyID and VerifyKeys allow secret rotation: tokens are signed under
	// KeyID and verified under any entry of VerifyKeys.
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
REFRESH CONFIG
====================================
*/

type RefreshConfig struct {
	TTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	RehashOnLogin    bool
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls registration and credential changes.
//
// ConcealUnknownAccounts reports unknown emails at login as invalid
// credentials instead of user-not-found.
type AccountConfig struct {
	DefaultRole                    string
	ConcealUnknownAccounts         bool
	RevokeSessionsOnPasswordChange bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls the Redis-backed login and refresh throttles. They
// are active only when the builder is given a Redis client.
type SecurityConfig struct {
	RedisPrefix             string
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with every field but JWT.Secret
// populated.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Algorithm: string(jwt.HS256),
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
			RehashOnLogin:    true,
		},
		Account: AccountConfig{
			DefaultRole:                    rbac.RoleUser,
			RevokeSessionsOnPasswordChange: true,
		},
		Security: SecurityConfig{
			RedisPrefix:             "authcore",
			EnableIPThrottle:        false,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c Config) passwordConfig() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MaxPasswordBytes: c.Password.MaxPasswordBytes,
	}
}

func (c Config) jwtConfig() jwt.Config {
	return jwt.Config{
		AccessTTL:  c.JWT.AccessTTL,
		Algorithm:  jwt.Algorithm(strings.ToUpper(c.JWT.Algorithm)),
		Secret:     c.JWT.Secret,
		Issuer:     c.JWT.Issuer,
		Audience:   c.JWT.Audience,
		Leeway:     c.JWT.Leeway,
		KeyID:      c.JWT.KeyID,
		VerifyKeys: c.JWT.VerifyKeys,
	}
}

// Validate checks c for values the engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch jwt.Algorithm(strings.ToUpper(c.JWT.Algorithm)) {
	case jwt.HS256, jwt.HS384, jwt.HS512:
	default:
		return errors.New("unsupported JWT algorithm")
	}
	if len(c.JWT.Secret) < jwt.MinSecretBytes {
		return fmt.Errorf("JWT Secret must be at least %d bytes", jwt.MinSecretBytes)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must be longer than JWT AccessTTL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes != 0 && c.Password.MaxPasswordBytes < password.MinPasswordBytes {
		return errors.New("Password MaxPasswordBytes must be >= 8")
	}

	// Account
	if strings.TrimSpace(c.Account.DefaultRole) == "" {
		return errors.New("Account DefaultRole must not be empty")
	}

	// Security
	if c.Security.RedisPrefix == "" {
		return errors.New("Security RedisPrefix must not be empty")
	}
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0 when refresh throttling is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0 when refresh throttling is enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "app-config-test-secret-0123456789abcdef"

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeFile(t, "authd.toml", `
[server]
addr = ":9090"
shutdown_timeout = "3s"

[log]
level = "debug"
format = "text"

[jwt]
secret = "`+testSecret+`"
access_ttl_minutes = 5

[refresh]
refresh_ttl_days = 2

[security]
max_login_attempts = 7
login_cooldown = "10m"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "text", cfg.Log.Format)

	core := cfg.Engine()
	assert.Equal(t, 5*time.Minute, core.JWT.AccessTTL)
	assert.Equal(t, 48*time.Hour, core.Refresh.TTL)
	assert.Equal(t, 7, core.Security.MaxLoginAttempts)
	assert.Equal(t, 10*time.Minute, core.Security.LoginCooldownDuration)
	assert.Equal(t, []byte(testSecret), core.JWT.Secret)
	assert.Equal(t, "ROLE_USER", core.Account.DefaultRole)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "authd.toml", `
[jwt]
secret = "`+testSecret+`"
acess_ttl_minutes = 5
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acess_ttl_minutes")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "authd.toml", `
[jwt]
secret = "`+testSecret+`"
access_ttl_minutes = 5
`)
	t.Setenv("AUTHCORE_ACCESS_TTL_MINUTES", "30")
	t.Setenv("AUTHCORE_ADDR", "127.0.0.1:7000")
	t.Setenv("AUTHCORE_CONCEAL_UNKNOWN_ACCOUNTS", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Engine().JWT.AccessTTL)
	assert.True(t, cfg.Engine().Account.ConcealUnknownAccounts)
}

func TestSecretFromFile(t *testing.T) {
	secretPath := writeFile(t, "jwt.key", testSecret+"\n")
	t.Setenv("AUTHCORE_JWT_SECRET", "file:"+secretPath)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.JWT.Secret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults with secret", mutate: func(c *Config) {}, ok: true},
		{name: "missing secret", mutate: func(c *Config) { c.JWT.Secret = "" }, ok: false},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = "postgres" }, ok: false},
		{name: "postgres with dsn", mutate: func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.DSN = "postgres://localhost/authcore"
		}, ok: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, ok: false},
		{name: "redis ledger without addr", mutate: func(c *Config) { c.Store.Ledger = "redis" }, ok: false},
		{name: "negative ledger retention", mutate: func(c *Config) { c.Store.LedgerRetention = -time.Hour }, ok: false},
		{name: "unknown audit sink", mutate: func(c *Config) { c.Audit.Sink = "kafka" }, ok: false},
		{name: "admin email without password", mutate: func(c *Config) { c.Admin.Email = "root@example.com" }, ok: false},
		{name: "refresh shorter than access", mutate: func(c *Config) {
			c.JWT.AccessTTLMinutes = 2 * 24 * 60
			c.Refresh.TTLDays = 1
		}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.JWT.Secret = testSecret
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestDefaultKeepsLedgerRows(t *testing.T) {
	require.Zero(t, Default().Store.LedgerRetention)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("AUTHCORE_TEST_INT", "-3")
	t.Setenv("AUTHCORE_TEST_BOOL", "nope")
	t.Setenv("AUTHCORE_TEST_DURATION", "90s")
	t.Setenv("AUTHCORE_TEST_FLOAT", "2.5")

	assert.Equal(t, 4, EnvInt("AUTHCORE_TEST_INT", 4))
	assert.True(t, EnvBool("AUTHCORE_TEST_BOOL", true))
	assert.Equal(t, 90*time.Second, EnvDuration("AUTHCORE_TEST_DURATION", time.Second))
	assert.Equal(t, 2.5, EnvFloat("AUTHCORE_TEST_FLOAT", 1))
	assert.Equal(t, "fallback", EnvString("AUTHCORE_TEST_UNSET", "fallback"))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DatabaseDriver:   "sqlite",
		DatabaseDSN:      "connectly.db",
		StateLedgerType:  StateLedgerMemory,
		RateLimitStore:   RateLimitStoreMemory,
		StateTokenTTL:    10 * time.Minute,
		TokenTTLFallback: time.Hour,
		Providers:        []string{"google", "github"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:        "invalid database driver",
			mutate:      func(c *Config) { c.DatabaseDriver = "mysql" },
			expectError: true,
			errorMsg:    `invalid DATABASE_DRIVER value: "mysql"`,
		},
		{
			name: "postgres requires dsn",
			mutate: func(c *Config) {
				c.DatabaseDriver = "postgres"
				c.DatabaseDSN = ""
			},
			expectError: true,
			errorMsg:    "DATABASE_DSN is required",
		},
		{
			name:        "invalid state ledger type",
			mutate:      func(c *Config) { c.StateLedgerType = "memcache" },
			expectError: true,
			errorMsg:    `invalid STATE_LEDGER_TYPE value: "memcache"`,
		},
		{
			name:        "invalid rate limit store - typo",
			mutate:      func(c *Config) { c.RateLimitStore = "reddis" },
			expectError: true,
			errorMsg:    `invalid RATE_LIMIT_STORE value: "reddis"`,
		},
		{
			name: "redis rate limit requires addr",
			mutate: func(c *Config) {
				c.RateLimitEnabled = true
				c.RateLimitStore = RateLimitStoreRedis
				c.RateLimitRedis = ""
			},
			expectError: true,
			errorMsg:    "RATE_LIMIT_REDIS_ADDR is required",
		},
		{
			name:        "non-positive state token ttl",
			mutate:      func(c *Config) { c.StateTokenTTL = 0 },
			expectError: true,
			errorMsg:    "STATE_TOKEN_TTL must be positive",
		},
		{
			name:        "non-positive token ttl fallback",
			mutate:      func(c *Config) { c.TokenTTLFallback = -time.Second },
			expectError: true,
			errorMsg:    "TOKEN_TTL_FALLBACK must be positive",
		},
		{
			name:        "unknown provider",
			mutate:      func(c *Config) { c.Providers = []string{"google", "facebok"} },
			expectError: true,
			errorMsg:    `unknown provider in PROVIDERS: "facebok"`,
		},
		{
			name:        "custom provider without endpoints",
			mutate:      func(c *Config) { c.Providers = []string{"custom"} },
			expectError: true,
			errorMsg:    "CUSTOM_AUTH_URL and CUSTOM_TOKEN_URL are required",
		},
		{
			name: "custom provider with endpoints",
			mutate: func(c *Config) {
				c.Providers = []string{"custom"}
				c.CustomAuthURL = "https://idp.example.com/authorize"
				c.CustomTokenURL = "https://idp.example.com/token"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// TestDefaultValues verifies that key defaults match the documented behavior.
func TestDefaultValues(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.StateTokenTTL, "state TTL should default to 10m")
	assert.Equal(t, time.Hour, cfg.TokenTTLFallback, "expires_in fallback should default to 1h")
	assert.Equal(t, 15*time.Second, cfg.OAuthTimeout, "provider HTTP timeout should default to 15s")
	assert.Equal(t, StateLedgerMemory, cfg.StateLedgerType)
	assert.Equal(t, 5*time.Second, cfg.ServerShutdownTimeout)
	assert.Equal(t, 10*time.Second, cfg.AuditShutdownTimeout)
}

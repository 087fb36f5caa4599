package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// State ledger backend constants
const (
	StateLedgerMemory = "memory"
	StateLedgerRedis  = "redis"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// Session settings (browser binding of the state parameter)
	SessionSecret string

	// State token settings
	StateTokenSecret string
	StateTokenTTL    time.Duration // pending authorization must be consumed within this window

	// Token sealing (at-rest encryption of client secrets and tokens)
	TokenSealSecret string

	// Admin API (guards the app configure endpoint)
	AdminToken string

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string // Database connection string (DSN or path)

	// Provider HTTP client
	OAuthTimeout            time.Duration // HTTP client timeout for provider requests (default: 15s)
	OAuthInsecureSkipVerify bool          // Skip TLS verification (dev/testing only, default: false)
	RevokeMaxRetries        int           // Retries for revocation posts (default: 2)

	// Token refresh
	TokenTTLFallback time.Duration // expiry when the provider omits expires_in (default: 1h)

	// Enabled providers
	Providers []string // subset of "google", "github", "linkedin", "custom"

	// Custom provider endpoints (generic authorization-code provider)
	CustomProviderName     string
	CustomAuthURL          string
	CustomTokenURL         string
	CustomUserInfoURL      string
	CustomRevokeURL        string // empty when the provider has no revoke endpoint
	CustomProfileIDField   string
	CustomProfileNameField string

	// Consumed-state ledger (replay protection)
	StateLedgerType     string // "memory" or "redis"
	StateLedgerAddr     string
	StateLedgerPassword string
	StateLedgerDB       int

	// Rate limiting for the public OAuth endpoints
	RateLimitEnabled  bool
	RateLimitStore    string // "memory" or "redis"
	RateLimitRedis    string
	RateLimitRequests int

	// Metrics
	MetricsEnabled             bool
	MetricsGaugeUpdateEnabled  bool
	MetricsGaugeUpdateInterval time.Duration

	// Audit logging
	EnableAuditLogging bool
	AuditLogBufferSize int
	AuditLogRetention  int // days

	// Lifecycle timeouts
	ServerShutdownTimeout time.Duration
	AuditShutdownTimeout  time.Duration
	CacheInitTimeout      time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	// Determine database driver and DSN
	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "connectly.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),

		SessionSecret:    getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		StateTokenSecret: getEnv("STATE_TOKEN_SECRET", "state-secret-change-in-production"),
		StateTokenTTL:    getEnvDuration("STATE_TOKEN_TTL", 10*time.Minute),
		TokenSealSecret:  getEnv("TOKEN_SEAL_SECRET", "seal-secret-change-in-production"),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		OAuthTimeout:            getEnvDuration("OAUTH_TIMEOUT", 15*time.Second),
		OAuthInsecureSkipVerify: getEnvBool("OAUTH_INSECURE_SKIP_VERIFY", false),
		RevokeMaxRetries:        getEnvInt("REVOKE_MAX_RETRIES", 2),

		TokenTTLFallback: getEnvDuration("TOKEN_TTL_FALLBACK", time.Hour),

		Providers: getEnvSlice("PROVIDERS", []string{"google", "github", "linkedin"}),

		CustomProviderName:     getEnv("CUSTOM_PROVIDER_NAME", "custom"),
		CustomAuthURL:          getEnv("CUSTOM_AUTH_URL", ""),
		CustomTokenURL:         getEnv("CUSTOM_TOKEN_URL", ""),
		CustomUserInfoURL:      getEnv("CUSTOM_USERINFO_URL", ""),
		CustomRevokeURL:        getEnv("CUSTOM_REVOKE_URL", ""),
		CustomProfileIDField:   getEnv("CUSTOM_PROFILE_ID_FIELD", "id"),
		CustomProfileNameField: getEnv("CUSTOM_PROFILE_NAME_FIELD", "name"),

		StateLedgerType:     getEnv("STATE_LEDGER_TYPE", StateLedgerMemory),
		StateLedgerAddr:     getEnv("STATE_LEDGER_REDIS_ADDR", "localhost:6379"),
		StateLedgerPassword: getEnv("STATE_LEDGER_REDIS_PASSWORD", ""),
		StateLedgerDB:       getEnvInt("STATE_LEDGER_REDIS_DB", 0),

		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", false),
		RateLimitStore:    getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		RateLimitRedis:    getEnv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 30),

		MetricsEnabled:             getEnvBool("METRICS_ENABLED", true),
		MetricsGaugeUpdateEnabled:  getEnvBool("METRICS_GAUGE_UPDATE_ENABLED", true),
		MetricsGaugeUpdateInterval: getEnvDuration("METRICS_GAUGE_UPDATE_INTERVAL", time.Minute),

		EnableAuditLogging: getEnvBool("ENABLE_AUDIT_LOGGING", true),
		AuditLogBufferSize: getEnvInt("AUDIT_LOG_BUFFER_SIZE", 1000),
		AuditLogRetention:  getEnvInt("AUDIT_LOG_RETENTION_DAYS", 90),

		ServerShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		AuditShutdownTimeout:  getEnvDuration("AUDIT_SHUTDOWN_TIMEOUT", 10*time.Second),
		CacheInitTimeout:      getEnvDuration("CACHE_INIT_TIMEOUT", 5*time.Second),
	}
}

// Validate checks the loaded configuration for inconsistencies that would
// only surface at runtime otherwise.
func (c *Config) Validate() error {
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("invalid DATABASE_DRIVER value: %q", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required when DATABASE_DRIVER is postgres")
	}

	if c.StateLedgerType != StateLedgerMemory && c.StateLedgerType != StateLedgerRedis {
		return fmt.Errorf("invalid STATE_LEDGER_TYPE value: %q", c.StateLedgerType)
	}

	if c.RateLimitStore != RateLimitStoreMemory && c.RateLimitStore != RateLimitStoreRedis {
		return fmt.Errorf("invalid RATE_LIMIT_STORE value: %q", c.RateLimitStore)
	}
	if c.RateLimitEnabled && c.RateLimitStore == RateLimitStoreRedis && c.RateLimitRedis == "" {
		return fmt.Errorf("RATE_LIMIT_REDIS_ADDR is required when RATE_LIMIT_STORE is redis")
	}

	if c.StateTokenTTL <= 0 {
		return fmt.Errorf("STATE_TOKEN_TTL must be positive")
	}
	if c.TokenTTLFallback <= 0 {
		return fmt.Errorf("TOKEN_TTL_FALLBACK must be positive")
	}

	for _, p := range c.Providers {
		switch p {
		case "google", "github", "linkedin":
		case "custom":
			if c.CustomAuthURL == "" || c.CustomTokenURL == "" {
				return fmt.Errorf(
					"CUSTOM_AUTH_URL and CUSTOM_TOKEN_URL are required when the custom provider is enabled",
				)
			}
		default:
			return fmt.Errorf("unknown provider in PROVIDERS: %q", p)
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := splitAndTrim(value, ",")
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

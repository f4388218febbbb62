package app

import (
	"fmt"
	"strings"
	"time"
)

// Storage backends understood by openStore.
const (
	StorageMemory   = "memory"
	StorageBolt     = "bolt"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config contains all runtime configuration loaded from environment variables.
// Invite policy (link base, limits, sweep interval) lives in invite.Config.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Storage selects the kv backend. StoragePath is the file used by the
	// bolt and sqlite backends.
	Storage     string
	StoragePath string
	CacheTTL    time.Duration

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless Postgres is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	OTelEndpoint string
	ServiceName  string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	cfg := Config{
		HTTPAddr:  EnvString("SECURECHAT_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("SECURECHAT_LOG_LEVEL", "info"),
		LogFormat: EnvString("SECURECHAT_LOG_FORMAT", "json"),
		LogColor:  EnvBool("SECURECHAT_LOG_COLOR", false),

		ReadHeaderTimeout: EnvDuration("SECURECHAT_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SECURECHAT_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SECURECHAT_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("SECURECHAT_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("SECURECHAT_HTTP_MAX_HEADER_BYTES", 1<<20),

		Storage:     strings.ToLower(EnvString("SECURECHAT_STORAGE", "")),
		StoragePath: EnvString("SECURECHAT_STORAGE_PATH", ""),
		CacheTTL:    EnvDuration("SECURECHAT_CACHE_TTL", 0),

		DatabaseURL: EnvString("SECURECHAT_DATABASE_URL", ""),
		DBSchema:    EnvString("SECURECHAT_DB_SCHEMA", "securechat"),
		DBMaxConns:  EnvInt32("SECURECHAT_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("SECURECHAT_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("SECURECHAT_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   EnvCSV("SECURECHAT_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("SECURECHAT_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("SECURECHAT_CORS_MAX_AGE_SECONDS", 600),

		OTelEndpoint: EnvString("SECURECHAT_OTEL_ENDPOINT", ""),
		ServiceName:  EnvString("SECURECHAT_SERVICE_NAME", "securechat"),
	}

	// A database URL without an explicit backend selects Postgres.
	if cfg.Storage == "" {
		cfg.Storage = StorageMemory
		if cfg.DatabaseURL != "" {
			cfg.Storage = StoragePostgres
		}
	}
	return cfg
}

// Validate checks combinations LoadConfig cannot default away.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageBolt, StorageSQLite:
		if strings.TrimSpace(c.StoragePath) == "" {
			return fmt.Errorf("config: SECURECHAT_STORAGE=%s requires SECURECHAT_STORAGE_PATH", c.Storage)
		}
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("config: SECURECHAT_STORAGE=postgres requires SECURECHAT_DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown SECURECHAT_STORAGE %q", c.Storage)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty", "text":
	default:
		return fmt.Errorf("config: unknown SECURECHAT_LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// Package config provides centralized configuration management for fleetsync.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Import   ImportConfig
	History  HistoryConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, import runs can be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 10m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"10m"`
}

// StoreConfig selects and configures the record store the importer reconciles against.
type StoreConfig struct {
	// Backend is the record store implementation: http or postgres (default: http)
	Backend string `env:"STORE_BACKEND" default:"http"`

	// BaseURL is the record store API root, e.g. http://localhost:3000/api
	BaseURL string `env:"STORE_BASE_URL" envAlt:"BASE_URL" default:"http://localhost:3000/api"`

	// APIToken is sent as a bearer token when set
	APIToken string `env:"STORE_API_TOKEN"`

	// Timeout bounds every single store call (default: 30s)
	Timeout time.Duration `env:"STORE_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
// Only required when the postgres store or postgres history backend is selected.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds reconciliation run settings.
type ImportConfig struct {
	// Workers is the number of identity groups processed concurrently (default: 1, strictly sequential)
	Workers int `env:"IMPORT_WORKERS" default:"1"`

	// MaxConcurrentRuns is the maximum number of import runs in flight (default: 2)
	MaxConcurrentRuns int `env:"IMPORT_MAX_CONCURRENT_RUNS" default:"2"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// MaxFileSize is the maximum accepted spreadsheet size in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// Timeout is the maximum duration for a single run (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// FeedsFile is an optional YAML file with additional feed layouts
	FeedsFile string `env:"IMPORT_FEEDS_FILE"`

	// FeeFallback overrides the built-in student fee fallback when positive
	FeeFallback float64 `env:"IMPORT_FEE_FALLBACK" default:"0"`
}

// HistoryConfig holds run history persistence settings.
type HistoryConfig struct {
	// Backend is where run reports are kept: none, postgres or sqlite (default: sqlite)
	Backend string `env:"HISTORY_BACKEND" default:"sqlite"`

	// SQLitePath is the database file for the sqlite backend (default: fleetsync.db)
	SQLitePath string `env:"HISTORY_SQLITE_PATH" default:"fleetsync.db"`

	// RetentionDays is how long run reports are kept (default: 30)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"30"`

	// CheckInterval is how often the retention job runs (default: 24h)
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"24h"`
}

// SecurityConfig holds access control for the web service.
type SecurityConfig struct {
	// RequireAPIKey enables key checks on /api routes (default: false)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"false"`

	// APIKeys are accepted as "Authorization: Bearer <key>" or X-API-Key, comma-separated
	APIKeys []string `env:"SECURITY_API_KEYS"`

	// TrustedProxies are CIDRs whose X-Real-IP / X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"SECURITY_TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// NeedsDatabase reports whether any selected backend talks to Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend == "postgres" || c.History.Backend == "postgres"
}

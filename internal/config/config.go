// Package config provides centralized configuration management for the
// service and CLI. Process settings load from environment variables with
// defaults and are validated on startup; per-meter ingest settings load
// from a YAML profile file (see profiles.go).
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ingest   IngestConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout bounds reading a request, including the uploaded file.
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"10m"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP / X-Forwarded-For
	// headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate creates missing tables on startup.
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// IngestConfig holds reading ingestion settings.
type IngestConfig struct {
	// ProfilesPath is the YAML file describing each meter.
	ProfilesPath string `env:"METER_PROFILES" default:"profiles.yaml"`

	// MaxFileSize caps an uploaded file in bytes (default: 100MB).
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"104857600"`

	MaxConcurrent int           `env:"INGEST_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// FlushSize is the number of readings written per batch.
	FlushSize int `env:"INGEST_FLUSH_SIZE" default:"1000"`

	// StreamingThreshold is the file size at which rows are mapped while
	// streaming (default: 10MB).
	StreamingThreshold int64 `env:"INGEST_STREAMING_THRESHOLD" default:"10485760"`

	// DiagnosticsLimit caps the diagnostics text per ingest.
	DiagnosticsLimit int `env:"INGEST_DIAGNOSTICS_LIMIT" default:"75000"`

	Timeout time.Duration `env:"INGEST_TIMEOUT" default:"10m"`

	// Lenient replaces invalid UTF-8 instead of rejecting the file.
	Lenient bool `env:"INGEST_LENIENT_ENCODING" default:"false"`

	// HistoryRetentionDays is how long ingest records are kept by the
	// server's retention job (0 disables it).
	HistoryRetentionDays int           `env:"INGEST_HISTORY_RETENTION_DAYS" default:"90"`
	HistoryPurgeInterval time.Duration `env:"INGEST_HISTORY_PURGE_INTERVAL" default:"24h"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

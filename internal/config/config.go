// Package config provides centralized configuration management for the ingest service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upload    UploadConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Scheduler SchedulerConfig
	Monitor   MonitorConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 3005)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"3005"`

	// ReadTimeout is the maximum duration for reading the request body (default: 2m)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"2m"`

	// WriteTimeout is 0 because /upload holds the response until ingestion finishes.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to every route except /upload (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds bulk ingestion settings.
type UploadConfig struct {
	// Dir is where uploaded files are spooled before ingestion (default: uploads)
	Dir string `env:"UPLOAD_DIR" default:"uploads"`

	// ChunkSize is the number of rows handed to one processing unit (default: 1000)
	ChunkSize int `env:"WORKER_CHUNK_SIZE" default:"1000"`

	// MaxWorkers bounds the number of chunks processed at once (default: 8)
	MaxWorkers int `env:"INGEST_MAX_WORKERS" default:"8"`

	// MaxStoreConns bounds the store sessions held by one ingestion (default: 8)
	MaxStoreConns int `env:"INGEST_MAX_STORE_CONNS" default:"8"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of uploads ingested in parallel (default: 2)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single ingestion (default: 30m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"30m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// SchedulerConfig holds deferred message scheduler settings.
type SchedulerConfig struct {
	// Enabled replays pending messages at startup and accepts /schedule (default: true)
	Enabled bool `env:"SCHEDULER_ENABLED" default:"true"`

	// Location is the time zone used to interpret submitted date/time pairs (default: Local)
	Location string `env:"SCHEDULER_LOCATION" default:"Local"`
}

// MonitorConfig holds CPU monitor settings.
type MonitorConfig struct {
	// Enabled starts the CPU monitor (default: false)
	Enabled bool `env:"MONITOR_ENABLED" default:"false"`

	// CPUThreshold is the utilization percentage that triggers a restart (default: 70)
	CPUThreshold int `env:"MONITOR_CPU_THRESHOLD" default:"70"`

	// Interval is how often CPU utilization is sampled (default: 10s)
	Interval time.Duration `env:"MONITOR_INTERVAL" default:"10s"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}

// Package config provides centralized configuration management for the import service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JobStore JobStoreConfig
	Import   ImportConfig
	Upload   UploadConfig
	Enrich   EnrichConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including in-flight chunks (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
// An empty URL runs the importer against an in-memory directory.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies schema migrations on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// Job store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// JobStoreConfig selects where import jobs live between chunk calls.
type JobStoreConfig struct {
	// Backend is "memory" or "redis" (default: memory)
	Backend string `env:"JOBSTORE_BACKEND" default:"memory"`

	// RedisURL is required when Backend is redis, e.g. redis://localhost:6379/0
	RedisURL string `env:"REDIS_URL"`

	// KeyPrefix namespaces job keys in Redis (default: bulkimport:job:)
	KeyPrefix string `env:"JOBSTORE_KEY_PREFIX" default:"bulkimport:job:"`

	// TTL is how long an idle job survives (default: 1h)
	TTL time.Duration `env:"JOBSTORE_TTL" default:"1h"`

	// ReapInterval is how often the memory backend purges expired jobs (default: 1m)
	ReapInterval time.Duration `env:"JOBSTORE_REAP_INTERVAL" default:"1m"`
}

// ImportConfig holds chunk processing settings.
type ImportConfig struct {
	// BatchSize is the chunk size recommended for plain imports (default: 25)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"25"`

	// SlowBatchSize is recommended when images or geocoding are requested (default: 10)
	SlowBatchSize int `env:"IMPORT_SLOW_BATCH_SIZE" default:"10"`

	// MaxChunkSize caps the chunk size a client may request (default: 500)
	MaxChunkSize int `env:"IMPORT_MAX_CHUNK_SIZE" default:"500"`

	// MaxConcurrent is the number of chunks processed at once (default: 8)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"8"`

	// MaxWaitTime is how long a chunk waits for a slot (default: 10s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"10s"`
}

// UploadConfig holds CSV upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 20MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"20971520"`
}

// EnrichConfig holds settings for the optional per-row geocoding and image
// fetching. Rows only use them when the import asks for it.
type EnrichConfig struct {
	// GeocodeEnabled turns on address lookups (default: false)
	GeocodeEnabled bool `env:"GEOCODE_ENABLED" default:"false"`

	// GeocodeURL is a Nominatim-compatible search endpoint
	GeocodeURL string `env:"GEOCODE_URL" default:"https://nominatim.openstreetmap.org/search"`

	// GeocodeUserAgent identifies this service to the geocoder, which Nominatim requires
	GeocodeUserAgent string `env:"GEOCODE_USER_AGENT" default:"bulkimport/1.0"`

	// GeocodeInterval is the minimum gap between geocoder requests (default: 1.1s)
	GeocodeInterval time.Duration `env:"GEOCODE_INTERVAL" default:"1100ms"`

	GeocodeTimeout time.Duration `env:"GEOCODE_TIMEOUT" default:"10s"`

	// MediaEnabled turns on image downloads (default: false)
	MediaEnabled bool `env:"MEDIA_ENABLED" default:"false"`

	// MediaMaxSize caps a downloaded image in bytes (default: 10MB)
	MediaMaxSize int64 `env:"MEDIA_MAX_SIZE" default:"10485760"`

	MediaTimeout time.Duration `env:"MEDIA_TIMEOUT" default:"30s"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// UploadLimit is requests per minute for starting imports (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

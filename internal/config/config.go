// Package config loads sercha-ingest configuration from files, environment
// variables (SERCHA_ prefix) and defaults.
package config

import "time"

// Config is the root configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Vespa      VespaConfig      `mapstructure:"vespa"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Reaper     ReaperConfig     `mapstructure:"reaper"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Extractors ExtractorsConfig `mapstructure:"extractors"`
	Blob       BlobConfig       `mapstructure:"blob"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures PostgreSQL
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig configures Redis. An empty URL disables Redis.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// Queue backends
const (
	QueueBackendAuto     = "auto"
	QueueBackendRedis    = "redis"
	QueueBackendPostgres = "postgres"
	QueueBackendMemory   = "memory"
)

// QueueConfig configures task dispatch
type QueueConfig struct {
	// Backend is auto, redis, postgres or memory. Auto picks Redis when
	// redis.url is set, PostgreSQL otherwise.
	Backend       string        `mapstructure:"backend"`
	MaxDeliveries int           `mapstructure:"max_deliveries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	// ClaimTimeout is how long a delivered reference stays invisible before
	// redelivery. Must exceed worker.job_timeout.
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// VespaConfig configures the chunk index
type VespaConfig struct {
	URL       string        `mapstructure:"url"`
	Namespace string        `mapstructure:"namespace"`
	Cluster   string        `mapstructure:"cluster"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig configures the optional embedding provider
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	Dimensions        int           `mapstructure:"dimensions"`
	BatchSize         int           `mapstructure:"batch_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// WorkerConfig configures task execution
type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	Pollers           int           `mapstructure:"pollers"`
	DequeueTimeout    int           `mapstructure:"dequeue_timeout"` // seconds
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// ReaperConfig configures stale task recovery
type ReaperConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	RedispatchAfter time.Duration `mapstructure:"redispatch_after"`
	BatchSize       int           `mapstructure:"batch_size"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

// ChunkingConfig configures the chunking engine
type ChunkingConfig struct {
	MaxTokens int    `mapstructure:"max_tokens"`
	Tokenizer string `mapstructure:"tokenizer"`
	BatchSize int    `mapstructure:"batch_size"`
}

// ExtractorsConfig configures the remote extraction service
type ExtractorsConfig struct {
	RemoteURL string  `mapstructure:"remote_url"`
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// BlobConfig configures raw and processed content storage
type BlobConfig struct {
	Root         string        `mapstructure:"root"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// AuthConfig configures API authentication
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	APIKeyHashes []string      `mapstructure:"api_key_hashes"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// ResolvedQueueBackend returns the concrete queue backend
func (c *Config) ResolvedQueueBackend() string {
	if c.Queue.Backend != "" && c.Queue.Backend != QueueBackendAuto {
		return c.Queue.Backend
	}
	if c.Redis.URL != "" {
		return QueueBackendRedis
	}
	return QueueBackendPostgres
}

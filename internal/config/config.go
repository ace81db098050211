// Package config loads the worker process's configuration from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RedisConfig is the coordination store connection (§6, ambient).
type RedisConfig struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// PostgresConfig is the document store connection (§6, ambient). Either DSN
// is set directly, or the discrete fields are combined into one.
type PostgresConfig struct {
	DSN      string `yaml:"dsn" env:"POSTGRES_DSN"`
	Host     string `yaml:"host" env:"POSTGRES_HOST"`
	Port     string `yaml:"port" env:"POSTGRES_PORT"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database string `yaml:"database" env:"POSTGRES_DATABASE"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE"`
}

// HasDSN reports whether a pre-assembled DSN was configured directly.
func (p PostgresConfig) HasDSN() bool {
	return p.DSN != ""
}

// ElasticsearchConfig is the optional secondary search index mirror (§4.4,
// ambient). An empty Addresses slice disables it entirely.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses" env:"ELASTICSEARCH_ADDRESSES"`
	Username  string   `yaml:"username" env:"ELASTICSEARCH_USERNAME"`
	Password  string   `yaml:"password" env:"ELASTICSEARCH_PASSWORD"`
}

// Enabled reports whether the search index mirror should be started.
func (e ElasticsearchConfig) Enabled() bool {
	return len(e.Addresses) > 0
}

// LoggingConfig controls the zap-backed logger (§10, ambient).
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Config is the complete worker startup configuration enumerated in §6.
type Config struct {
	WorkerID string `yaml:"worker_id" env:"WORKER_ID"`

	MaxPages  int64 `yaml:"max_pages" env:"MAX_PAGES"`
	BatchSize int   `yaml:"batch_size" env:"BATCH_SIZE"`

	WorkerPoolSize int `yaml:"worker_pool_size" env:"WORKER_POOL_SIZE"`
	MaxRetries     int `yaml:"max_retries" env:"MAX_RETRIES"`

	BatchAge          time.Duration `yaml:"batch_age_seconds" env:"BATCH_AGE_SECONDS"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout_seconds" env:"FETCH_TIMEOUT_SECONDS"`
	DefaultCrawlDelay time.Duration `yaml:"default_crawl_delay_seconds" env:"DEFAULT_CRAWL_DELAY_SECONDS"`
	RobotsCacheTTL    time.Duration `yaml:"robots_cache_ttl_seconds" env:"ROBOTS_CACHE_TTL_SECONDS"`
	ClaimTTL          time.Duration `yaml:"claim_ttl_seconds" env:"CLAIM_TTL_SECONDS"`
	LeaseTTL          time.Duration `yaml:"lease_ttl_seconds" env:"LEASE_TTL_SECONDS"`

	FilterCapacity  uint64  `yaml:"filter_capacity" env:"FILTER_CAPACITY"`
	FilterErrorRate float64 `yaml:"filter_error_rate" env:"FILTER_ERROR_RATE"`

	UserAgent string `yaml:"user_agent" env:"USER_AGENT"`
	HealthAddr string `yaml:"health_addr" env:"HEALTH_ADDR"`

	Redis         RedisConfig         `yaml:"redis"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// SetDefaults fills in every field left at its zero value with the default
// named in §6. It never overwrites an already-set field.
func (c *Config) SetDefaults() {
	if c.WorkerID == "" {
		c.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = 4
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BatchAge == 0 {
		c.BatchAge = 5 * time.Second
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.DefaultCrawlDelay == 0 {
		c.DefaultCrawlDelay = time.Second
	}
	if c.RobotsCacheTTL == 0 {
		c.RobotsCacheTTL = time.Hour
	}
	if c.ClaimTTL == 0 {
		c.ClaimTTL = 600 * time.Second
	}
	if c.LeaseTTL == 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.FilterCapacity == 0 {
		c.FilterCapacity = 10_000_000
	}
	if c.FilterErrorRate == 0 {
		c.FilterErrorRate = 0.001
	}
	if c.UserAgent == "" {
		c.UserAgent = "distributed-web-crawler/1.0"
	}
	if c.HealthAddr == "" {
		c.HealthAddr = ":8090"
	}
	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
	if c.Postgres.Host == "" && c.Postgres.DSN == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Load reads path as YAML, applies defaults, then applies environment
// variable overrides (which always win, matching the `env:` tag on every
// field above).
func Load(path string) (*Config, error) {
	cfg, err := loadYAML(path)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

package config

import (
	"errors"
	"fmt"

	"github.com/saurabh6354/distributed-web-crawler/internal/worker"
)

var (
	// ErrUserAgentRequired is returned when no user agent string is configured.
	ErrUserAgentRequired = errors.New("config: user_agent is required")
	// ErrRedisAddressRequired is returned when the coordination store address is empty.
	ErrRedisAddressRequired = errors.New("config: redis.address is required")
	// ErrPostgresRequired is returned when no document store connection is configured.
	ErrPostgresRequired = errors.New("config: postgres dsn or host is required")
	// ErrInvalidFilterErrorRate is returned when filter_error_rate is outside (0, 1).
	ErrInvalidFilterErrorRate = errors.New("config: filter_error_rate must be in (0, 1)")
)

// Validate checks that every field required to start the worker process is
// present and sane. It does not attempt any network I/O; connectivity is
// verified at startup (§6's exit codes 3 and 4).
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return ErrUserAgentRequired
	}
	if c.Redis.Address == "" {
		return ErrRedisAddressRequired
	}
	if !c.Postgres.HasDSN() && c.Postgres.Host == "" {
		return ErrPostgresRequired
	}
	if c.FilterErrorRate <= 0 || c.FilterErrorRate >= 1 {
		return ErrInvalidFilterErrorRate
	}
	if c.WorkerPoolSize < 1 || c.WorkerPoolSize > worker.MaxPoolSize {
		return fmt.Errorf("config: worker_pool_size must be between 1 and %d", worker.MaxPoolSize)
	}
	return nil
}

// DSN returns the assembled Postgres connection string, preferring an
// explicit Postgres.DSN over the discrete fields.
func (c *Config) DSN() string {
	if c.Postgres.HasDSN() {
		return c.Postgres.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.User,
		c.Postgres.Password, c.Postgres.Database, c.Postgres.SSLMode,
	)
}

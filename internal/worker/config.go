// Package worker implements the worker loop (C5): a pool of goroutines
// that each independently claim a URL from the frontier, enforce
// politeness, fetch and parse it, persist the result, and complete the
// claim — coordinated only through the shared frontier, politeness, and
// storage components, with no master scheduler and no in-process mutex
// between workers.
package worker

import (
	"errors"
	"time"
)

const (
	// DefaultPoolSize is the default number of concurrent fetch goroutines.
	DefaultPoolSize = 4

	// DefaultDrainTimeout bounds how long shutdown waits for in-flight
	// fetches to finish before giving up and returning.
	DefaultDrainTimeout = 30 * time.Second

	// DefaultFetchTimeout bounds a single page fetch.
	DefaultFetchTimeout = 10 * time.Second

	// DefaultIdleBackoff is the base sleep between empty claim polls.
	DefaultIdleBackoff = 1 * time.Second

	// DefaultMaxIdlePolls is how many consecutive empty claims a worker
	// tolerates before exiting; 0 means poll forever.
	DefaultMaxIdlePolls = 0

	// DefaultHostClaimBudget bounds how many times a worker retries
	// acquiring a host's politeness lease before returning the URL to the
	// frontier with a small penalty.
	DefaultHostClaimBudget = 5

	// MinPoolSize and MaxPoolSize bound Config.PoolSize.
	MinPoolSize = 1
	MaxPoolSize = 256
)

// Config controls worker pool sizing and lifecycle behavior.
type Config struct {
	// PoolSize is the number of concurrent fetch goroutines.
	PoolSize int

	// MaxPages caps the total number of pages this process will complete
	// before shutting itself down; 0 means unlimited.
	MaxPages int64

	// UserAgent is sent on every page fetch.
	UserAgent string

	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration

	// DrainTimeout bounds graceful shutdown.
	DrainTimeout time.Duration

	// IdleBackoff is the base sleep between empty claim polls; actual sleep
	// is jittered.
	IdleBackoff time.Duration

	// MaxIdlePolls is how many consecutive empty claims a worker tolerates
	// before exiting; 0 means poll forever.
	MaxIdlePolls int

	// HostClaimBudget bounds lease-acquisition retries per URL before it is
	// returned to the frontier with a small penalty.
	HostClaimBudget int
}

// DefaultConfig returns sensible defaults for all fields.
func DefaultConfig() Config {
	return Config{
		PoolSize:        DefaultPoolSize,
		UserAgent:       "distributed-web-crawler/1.0",
		FetchTimeout:    DefaultFetchTimeout,
		DrainTimeout:    DefaultDrainTimeout,
		IdleBackoff:     DefaultIdleBackoff,
		MaxIdlePolls:    DefaultMaxIdlePolls,
		HostClaimBudget: DefaultHostClaimBudget,
	}
}

// Validate checks that Config's bounded fields are within range.
func (c Config) Validate() error {
	if c.PoolSize < MinPoolSize || c.PoolSize > MaxPoolSize {
		return errors.New("worker: pool size must be between 1 and 256")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("worker: fetch timeout must be positive")
	}
	if c.DrainTimeout <= 0 {
		return errors.New("worker: drain timeout must be positive")
	}
	if c.IdleBackoff <= 0 {
		return errors.New("worker: idle backoff must be positive")
	}
	if c.HostClaimBudget <= 0 {
		return errors.New("worker: host claim budget must be positive")
	}
	return nil
}

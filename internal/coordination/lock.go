// Package coordination provides higher-level coordination primitives built
// on top of the coordination store facade (C6): the per-host politeness
// lease used by C2 to serialize fetches against a single host.
package coordination

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLeaseTTL is the default lease time-to-live.
	DefaultLeaseTTL = 30 * time.Second

	// DefaultRetryDelay is the default delay between lease acquisition retries.
	DefaultRetryDelay = 100 * time.Millisecond

	// DefaultMaxRetries is the default maximum number of lease acquisition retries.
	DefaultMaxRetries = 10
)

// ErrLeaseNotAcquired is returned when a lease cannot be acquired within
// the configured retry budget.
var ErrLeaseNotAcquired = errors.New("coordination: lease not acquired")

// ErrLeaseNotHeld is returned when releasing or extending a lease this
// instance does not currently own.
var ErrLeaseNotHeld = errors.New("coordination: lease not held")

// store is the subset of the coordination store facade a Lease needs.
type store interface {
	KVSetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	KVCompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	KVCompareAndExtend(ctx context.Context, key, expected string, ttl time.Duration) (bool, error)
	KVGet(ctx context.Context, key string) (string, bool, error)
}

// LeaseConfig holds configuration for a Lease.
type LeaseConfig struct {
	TTL        time.Duration // Lease TTL (default: 30s)
	RetryDelay time.Duration // Delay between retries (default: 100ms)
	MaxRetries int           // Maximum retries (default: 10)
}

// DefaultLeaseConfig returns a LeaseConfig with sensible defaults.
func DefaultLeaseConfig() LeaseConfig {
	return LeaseConfig{
		TTL:        DefaultLeaseTTL,
		RetryDelay: DefaultRetryDelay,
		MaxRetries: DefaultMaxRetries,
	}
}

// Lease is a coordination-store-backed mutual-exclusion lease, keyed per
// host, that a worker holds for the duration of a single fetch so that no
// two workers ever fetch the same host concurrently.
type Lease struct {
	store      store
	key        string
	token      string
	ttl        time.Duration
	retryDelay time.Duration
	maxRetries int
}

// NewLease creates a new lease bound to key (typically "lease:<host>").
func NewLease(s store, key string, cfg LeaseConfig) *Lease {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLeaseTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	return &Lease{
		store:      s,
		key:        key,
		token:      uuid.New().String(),
		ttl:        cfg.TTL,
		retryDelay: cfg.RetryDelay,
		maxRetries: cfg.MaxRetries,
	}
}

// Acquire blocks, making up to maxRetries attempts in total, until the
// lease is acquired or ctx is cancelled.
func (l *Lease) Acquire(ctx context.Context) error {
	for i := range l.maxRetries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		acquired, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		if i < l.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.retryDelay):
			}
		}
	}

	return ErrLeaseNotAcquired
}

// TryAcquire attempts to acquire the lease without blocking.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	return l.store.KVSetIfAbsent(ctx, l.key, l.token, l.ttl)
}

// Release releases the lease if it is still held by this instance.
func (l *Lease) Release(ctx context.Context) error {
	ok, err := l.store.KVCompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseNotHeld
	}
	return nil
}

// Extend refreshes the lease TTL if it is still held by this instance.
func (l *Lease) Extend(ctx context.Context, extension time.Duration) error {
	ok, err := l.store.KVCompareAndExtend(ctx, l.key, l.token, extension)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseNotHeld
	}
	return nil
}

// IsHeld reports whether this instance currently holds the lease.
func (l *Lease) IsHeld(ctx context.Context) (bool, error) {
	val, ok, err := l.store.KVGet(ctx, l.key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return val == l.token, nil
}

// Key returns the lease key.
func (l *Lease) Key() string { return l.key }

// Token returns the lease token held by this instance.
func (l *Lease) Token() string { return l.token }

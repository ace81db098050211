package politeness

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/saurabh6354/distributed-web-crawler/internal/coordination"
)

const leaseKeyPrefix = "crawler:lease:"

// store is the full coordination-store surface the controller needs;
// satisfied by *coordstore.Store.
type store interface {
	robotsStore
	domainStore
	KVCompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	KVCompareAndExtend(ctx context.Context, key, expected string, ttl time.Duration) (bool, error)
}

// Controller is the full politeness surface a worker consults before and
// after every fetch: robots.txt permission, a per-host mutual-exclusion
// lease, and the adaptive crawl delay.
type Controller struct {
	store    store
	robots   *RobotsCache
	delay    *DelayTracker
	leaseCfg coordination.LeaseConfig
}

// New constructs a Controller bound to the coordination store. httpClient
// is used only for robots.txt fetches; the crawl fetch itself is driven by
// internal/extract. robotsCacheTTL bounds how long a fetched robots.txt is
// trusted before being re-fetched; baseCrawlDelay is the floor delay, and a
// longer robots.txt crawl-delay or adaptive penalty takes precedence over it.
func New(s store, httpClient *http.Client, userAgent string, robotsCacheTTL, baseCrawlDelay time.Duration, leaseCfg coordination.LeaseConfig) *Controller {
	return &Controller{
		store:    s,
		robots:   NewRobotsCache(s, httpClient, userAgent, robotsCacheTTL),
		delay:    NewDelayTracker(s, baseCrawlDelay),
		leaseCfg: leaseCfg,
	}
}

// CheckAllowed reports whether rawURL may be fetched under its host's
// robots.txt rules.
func (c *Controller) CheckAllowed(ctx context.Context, rawURL string) (bool, error) {
	return c.robots.IsAllowed(ctx, rawURL)
}

// AcquireLease blocks until this worker holds the per-host fetch lease for
// host, or ctx is cancelled / the retry budget is exhausted. The returned
// lease must be released (via ReleaseLease) immediately after the fetch
// completes — holding it any longer than the fetch itself serializes
// unrelated work against the same host for no reason.
func (c *Controller) AcquireLease(ctx context.Context, host string) (*coordination.Lease, error) {
	lease := coordination.NewLease(c.store, leaseKeyPrefix+host, c.leaseCfg)
	if err := lease.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("politeness: acquire lease for %s: %w", host, err)
	}
	return lease, nil
}

// ReleaseLease releases a lease obtained from AcquireLease.
func (c *Controller) ReleaseLease(ctx context.Context, lease *coordination.Lease) error {
	if err := lease.Release(ctx); err != nil {
		return fmt.Errorf("politeness: release lease: %w", err)
	}
	return nil
}

// WaitForDelay blocks for host's current crawl delay (the largest of the
// base delay, the robots.txt declared delay and the adaptive penalty), or
// until ctx is cancelled. It sleeps the full delay on every call; the time
// since the host's last fetch is not taken into account.
func (c *Controller) WaitForDelay(ctx context.Context, host string) error {
	robotsDelay, err := c.robots.CrawlDelay(ctx, host)
	if err != nil {
		return err
	}

	delay, err := c.delay.NextDelay(ctx, host, robotsDelay)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// RecordOutcome updates the adaptive delay tracker based on the HTTP
// status code observed for host, per SPEC_FULL.md §4.2: doubling the
// penalty on 5xx/429, decreasing it additively otherwise.
func (c *Controller) RecordOutcome(ctx context.Context, host string, statusCode int) error {
	if statusCode >= 500 || statusCode == http.StatusTooManyRequests {
		return c.delay.RecordThrottled(ctx, host)
	}
	return c.delay.RecordSuccess(ctx, host)
}

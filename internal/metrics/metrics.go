// Package metrics tracks HTTP-level fetch outcomes across a worker pool,
// separately from the page-level business outcomes worker.PoolStats
// already reports: a single fetch can be retried, so request counts and
// page counts diverge under a flaky host.
package metrics

import (
	"net/http"
	"sync"
	"time"
)

// Recorder accumulates HTTP request outcomes for a running worker pool.
// Safe for concurrent use by every worker goroutine.
type Recorder struct {
	mu sync.Mutex

	startTime time.Time

	successfulRequests int64
	failedRequests     int64
	rateLimitedRequests int64
}

// NewRecorder returns a Recorder with its clock started.
func NewRecorder() *Recorder {
	return &Recorder{startTime: time.Now()}
}

// RecordRequest classifies a completed fetch by its HTTP status code,
// mirroring the transient-status handling in the worker loop: 429 counts
// as both failed and rate-limited, other 5xx count as failed only, and
// anything else 2xx-4xx counts as successful.
func (r *Recorder) RecordRequest(statusCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case statusCode == http.StatusTooManyRequests:
		r.failedRequests++
		r.rateLimitedRequests++
	case statusCode >= 500:
		r.failedRequests++
	default:
		r.successfulRequests++
	}
}

// RecordFetchError counts a request that never produced a status code
// (connection refused, timeout, DNS failure) as failed.
func (r *Recorder) RecordFetchError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedRequests++
}

// Snapshot is a point-in-time, race-free copy of the accumulated counters.
type Snapshot struct {
	StartTime           time.Time
	SuccessfulRequests   int64
	FailedRequests       int64
	RateLimitedRequests  int64
}

// Snapshot returns the current counter values.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		StartTime:           r.startTime,
		SuccessfulRequests:  r.successfulRequests,
		FailedRequests:      r.failedRequests,
		RateLimitedRequests: r.rateLimitedRequests,
	}
}

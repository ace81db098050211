package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/saurabh6354/distributed-web-crawler/internal/coordination"
	"github.com/saurabh6354/distributed-web-crawler/internal/domain"
	"github.com/saurabh6354/distributed-web-crawler/internal/extract"
	"github.com/saurabh6354/distributed-web-crawler/internal/frontier"
)

// WorkerState represents the current state of a single fetch goroutine.
type WorkerState int32

const (
	WorkerStateIdle WorkerState = iota
	WorkerStateBusy
	WorkerStateStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateBusy:
		return "busy"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker runs one independent instance of the §4.5 claim loop. Multiple
// workers in the same pool share only the pool's frontier/politeness/
// storage dependencies and the process-wide host-popularity counter — no
// mutex is needed between them.
type Worker struct {
	id   int
	pool *Pool

	state atomic.Int32

	pagesProcessed atomic.Int64
	pagesSucceeded atomic.Int64
	pagesFailed    atomic.Int64
	lastPageAt     atomic.Int64
	lastError      atomic.Value
	currentURL     atomic.Value
	pageStartedAt  atomic.Int64
}

func newWorker(id int, pool *Pool) *Worker {
	w := &Worker{id: id, pool: pool}
	w.state.Store(int32(WorkerStateIdle))
	w.currentURL.Store("")
	return w
}

// ID returns the worker's index within the pool.
func (w *Worker) ID() int { return w.id }

// State returns the worker's current state.
func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

// run drives the claim→process loop until ctx is cancelled or the pool's
// idle-poll budget is exhausted.
func (w *Worker) run(ctx context.Context) {
	defer w.pool.wg.Done()
	defer w.state.Store(int32(WorkerStateStopped))

	idlePolls := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if w.pool.pagesBudgetReached() {
			return
		}

		claim, ok, err := w.pool.frontier.Claim(ctx, w.pool.workerID)
		if err != nil {
			w.pool.logger.Error("worker: claim failed", "worker_id", w.id, "error", err)
			if !w.sleepOrCancel(ctx, jitter(w.pool.config.IdleBackoff)) {
				return
			}
			continue
		}
		if !ok {
			idlePolls++
			if w.pool.config.MaxIdlePolls > 0 && idlePolls >= w.pool.config.MaxIdlePolls {
				return
			}
			if !w.sleepOrCancel(ctx, jitter(w.pool.config.IdleBackoff)) {
				return
			}
			continue
		}

		idlePolls = 0
		w.state.Store(int32(WorkerStateBusy))
		w.currentURL.Store(claim.Item.URL)
		w.pageStartedAt.Store(time.Now().UnixNano())

		w.process(ctx, claim)

		w.currentURL.Store("")
		w.pageStartedAt.Store(0)
		w.state.Store(int32(WorkerStateIdle))
	}
}

// sleepOrCancel sleeps for d, returning false if ctx is cancelled first.
func (w *Worker) sleepOrCancel(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// process implements one full iteration of SPEC_FULL.md §4.5 steps 2-9 for
// a single claimed URL.
func (w *Worker) process(ctx context.Context, claim *domain.InflightClaim) {
	url := claim.Item.URL
	host := claim.Item.Host

	allowed, err := w.pool.politeness.CheckAllowed(ctx, url)
	if err != nil {
		w.pool.logger.Warn("worker: robots check failed, allowing", "url", url, "error", err)
		allowed = true
	}
	if !allowed {
		w.completeOrLog(ctx, url, "robots_disallowed")
		return
	}

	// The crawl-delay wait happens before the lease is acquired, never
	// while holding it: per §4.2 step 2 a worker that isn't yet due to
	// fetch a host releases and backs off rather than holding the host's
	// mutual-exclusion lease across a wait that can run to
	// maxAdaptivePenalty. Holding the lease across that sleep would also
	// regularly outlive lease_ttl_seconds, letting a second worker acquire
	// the same host once the first's lease expired mid-wait.
	if err := w.pool.politeness.WaitForDelay(ctx, host); err != nil {
		w.failOrLog(ctx, url, err)
		return
	}

	lease, acquired := w.acquireLeaseWithBudget(ctx, host)
	if !acquired {
		if _, err := w.pool.frontier.Fail(ctx, w.pool.workerID, url); err != nil {
			w.pool.logger.Error("worker: requeue after lease budget exhausted failed", "url", url, "error", err)
		}
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.pool.config.FetchTimeout)
	result, fetchErr := w.pool.extractor.Fetch(fetchCtx, url)
	cancel()

	statusCode := 0
	if result != nil {
		statusCode = result.StatusCode
	}
	if outcomeErr := w.pool.politeness.RecordOutcome(ctx, host, statusCode); outcomeErr != nil {
		w.pool.logger.Warn("worker: record outcome failed", "host", host, "error", outcomeErr)
	}
	if fetchErr != nil {
		w.pool.requests.RecordFetchError()
	} else {
		w.pool.requests.RecordRequest(statusCode)
	}

	// Per §4.5 step 5 and §5: the lease is released immediately after the
	// fetch completes, never held during parsing or storage.
	w.releaseLease(ctx, lease)

	if fetchErr != nil {
		w.failOrLog(ctx, url, fetchErr)
		return
	}

	w.pagesProcessed.Add(1)
	w.lastPageAt.Store(time.Now().UnixNano())

	switch {
	case result.StatusCode >= 300 && result.StatusCode < 400:
		w.handleRedirect(ctx, claim, result)
	case result.StatusCode == http.StatusNotFound, result.StatusCode == http.StatusGone:
		w.pagesSucceeded.Add(1)
		w.persistMetadataOnly(ctx, claim, result)
		w.completeOrLog(ctx, url, "not_found")
	case result.StatusCode == http.StatusTooManyRequests, result.StatusCode >= 500:
		w.pagesFailed.Add(1)
		w.failOrLog(ctx, url, errors.New("worker: transient status "+strconv.Itoa(result.StatusCode)))
	case result.StatusCode >= 200 && result.StatusCode < 300:
		w.pagesSucceeded.Add(1)
		w.handleSuccess(ctx, claim, result)
	default:
		w.pagesSucceeded.Add(1)
		w.persistMetadataOnly(ctx, claim, result)
		w.completeOrLog(ctx, url, "unhandled_status")
	}
}

// acquireLeaseWithBudget retries lease acquisition up to HostClaimBudget
// times, jittering the backoff between attempts, per §4.5 step 3.
func (w *Worker) acquireLeaseWithBudget(ctx context.Context, host string) (*coordination.Lease, bool) {
	for attempt := 0; attempt < w.pool.config.HostClaimBudget; attempt++ {
		lease, err := w.pool.politeness.AcquireLease(ctx, host)
		if err == nil {
			return lease, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		if !w.sleepOrCancel(ctx, jitter(w.pool.config.IdleBackoff)) {
			return nil, false
		}
	}
	return nil, false
}

func (w *Worker) releaseLease(ctx context.Context, lease *coordination.Lease) {
	if lease == nil {
		return
	}
	if err := w.pool.politeness.ReleaseLease(ctx, lease); err != nil {
		w.pool.logger.Warn("worker: release lease failed", "error", err)
	}
}

func (w *Worker) handleRedirect(ctx context.Context, claim *domain.InflightClaim, result *extract.Result) {
	location := result.Headers.Get("Location")
	if location == "" {
		w.completeOrLog(ctx, claim.Item.URL, "redirect_without_location")
		return
	}
	target, err := frontier.NormalizeURL(resolveRedirectTarget(claim.Item.URL, location))
	if err == nil {
		childPriority := claim.Priority + 1
		if targetHost, hostErr := frontier.ExtractHost(target); hostErr == nil {
			childPriority += w.pool.hostPenalty(targetHost)
		}
		if _, enqueueErr := w.pool.frontier.Enqueue(ctx, claim.Item.URL, target, claim.Item.Depth+1, childPriority); enqueueErr != nil {
			w.pool.logger.Warn("worker: enqueue redirect target failed", "url", target, "error", enqueueErr)
		}
	}
	w.completeOrLog(ctx, claim.Item.URL, "redirect")
}

func (w *Worker) handleSuccess(ctx context.Context, claim *domain.InflightClaim, result *extract.Result) {
	url := claim.Item.URL

	if extract.IsHTML(result.ContentType) {
		for _, link := range result.Links {
			normalized, err := frontier.NormalizeURL(link)
			if err != nil {
				continue
			}
			host, err := frontier.ExtractHost(normalized)
			if err != nil {
				continue
			}
			childPriority := claim.Priority + 1 + w.pool.hostPenalty(host)
			if _, err := w.pool.frontier.Enqueue(ctx, url, normalized, claim.Item.Depth+1, childPriority); err != nil {
				w.pool.logger.Warn("worker: enqueue link failed", "url", normalized, "error", err)
			}
		}
	}

	meta := domain.PageMetadata{
		URL:           url,
		NormalizedURL: url,
		Status:        result.StatusCode,
		ContentType:   result.ContentType,
		ContentLength: int64(len(result.Body)),
		FetchedAt:     time.Now(),
		WorkerID:      w.pool.workerID,
		OutboundLinks: len(result.Links),
		Headers:       headersToMap(result.Headers),
	}
	if len(result.Body) > 0 {
		sum := sha256.Sum256(result.Body)
		meta.ContentHash = hex.EncodeToString(sum[:])
	}

	if err := w.pool.storage.Add(ctx, meta, result.Body); err != nil {
		// Storage write failure: per §7, the URL is NOT completed so stale-
		// claim recovery can retry it later.
		w.pool.logger.Error("worker: storage add failed, leaving in flight", "url", url, "error", err)
		return
	}

	if w.pool.searchIndex != nil {
		if err := w.pool.searchIndex.UpsertPage(ctx, meta); err != nil {
			w.pool.logger.Debug("worker: search index mirror failed", "url", url, "error", err)
		}
	}

	w.completeOrLog(ctx, url, "success")
}

func (w *Worker) persistMetadataOnly(ctx context.Context, claim *domain.InflightClaim, result *extract.Result) {
	meta := domain.PageMetadata{
		URL:           claim.Item.URL,
		NormalizedURL: claim.Item.URL,
		Status:        result.StatusCode,
		ContentType:   result.ContentType,
		FetchedAt:     time.Now(),
		WorkerID:      w.pool.workerID,
	}
	if err := w.pool.storage.Add(ctx, meta, nil); err != nil {
		w.pool.logger.Warn("worker: metadata-only persist failed", "url", claim.Item.URL, "error", err)
	}
}

func (w *Worker) completeOrLog(ctx context.Context, url, reason string) {
	if err := w.pool.frontier.Complete(ctx, w.pool.workerID, url); err != nil {
		w.pool.logger.Warn("worker: complete failed", "url", url, "reason", reason, "error", err)
		return
	}
	w.pool.pagesCompleted.Add(1)
}

func (w *Worker) failOrLog(ctx context.Context, url string, cause error) {
	w.lastError.Store(cause)
	requeued, err := w.pool.frontier.Fail(ctx, w.pool.workerID, url)
	if err != nil {
		w.pool.logger.Warn("worker: fail failed", "url", url, "error", err)
		return
	}
	w.pool.logger.Warn("worker: fetch failed", "url", url, "requeued", requeued, "cause", cause)
}

// Stats summarizes one worker's activity since process start.
type Stats struct {
	ID             int
	State          WorkerState
	PagesProcessed int64
	PagesSucceeded int64
	PagesFailed    int64
	LastPageAt     time.Time
	LastError      error
	CurrentURL     string
	PageStartedAt  time.Time
}

// Stats returns a snapshot of this worker's counters.
func (w *Worker) Stats() Stats {
	var lastErr error
	if v := w.lastError.Load(); v != nil {
		lastErr, _ = v.(error)
	}

	var lastPageTime time.Time
	if ts := w.lastPageAt.Load(); ts > 0 {
		lastPageTime = time.Unix(0, ts)
	}

	var pageStart time.Time
	if ts := w.pageStartedAt.Load(); ts > 0 {
		pageStart = time.Unix(0, ts)
	}

	currentURL, _ := w.currentURL.Load().(string)

	return Stats{
		ID:             w.id,
		State:          w.State(),
		PagesProcessed: w.pagesProcessed.Load(),
		PagesSucceeded: w.pagesSucceeded.Load(),
		PagesFailed:    w.pagesFailed.Load(),
		LastPageAt:     lastPageTime,
		LastError:      lastErr,
		CurrentURL:     currentURL,
		PageStartedAt:  pageStart,
	}
}

// SuccessRate returns the worker's success rate as a percentage.
func (s Stats) SuccessRate() float64 {
	if s.PagesProcessed == 0 {
		return 0
	}
	return float64(s.PagesSucceeded) / float64(s.PagesProcessed) * 100
}

// IsHealthy reports whether the worker is neither stopped nor stuck on a
// fetch that has run far longer than a single fetch ever should.
func (s Stats) IsHealthy(stuckAfter time.Duration) bool {
	if s.State == WorkerStateStopped {
		return false
	}
	if s.State == WorkerStateBusy && !s.PageStartedAt.IsZero() {
		if time.Since(s.PageStartedAt) > stuckAfter {
			return false
		}
	}
	return true
}

// jitter returns d scaled by a random factor in [0.75, 1.25), so many
// workers backing off simultaneously don't retry in lockstep.
func jitter(d time.Duration) time.Duration {
	factor := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}

func headersToMap(h http.Header) domain.JSONBMap {
	m := make(domain.JSONBMap, len(h))
	for k, v := range h {
		if len(v) > 0 {
			m[k] = v[0]
		}
	}
	return m
}

// resolveRedirectTarget resolves a possibly-relative Location header
// against the URL that produced it.
func resolveRedirectTarget(base, location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	// Relative redirects are rare in practice for crawl targets; fall back
	// to treating the base's scheme+host as the resolution root.
	host, err := frontier.ExtractHost(base)
	if err != nil {
		return location
	}
	if strings.HasPrefix(location, "/") {
		scheme := "https://"
		if strings.HasPrefix(base, "http://") {
			scheme = "http://"
		}
		return scheme + host + location
	}
	return location
}

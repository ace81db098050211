package frontier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/saurabh6354/distributed-web-crawler/internal/domain"
)

const (
	// frontierKey is the coordination-store ZSET holding all pending items.
	frontierKey = "crawler:frontier"

	// inflightPrefix keys claimed-but-not-yet-completed items: inflight:<url>.
	inflightPrefix = "crawler:inflight:"

	// maxHostPopularityPenalty bounds the popularity penalty applied to a
	// child URL's inherited priority (see priorityFor).
	maxHostPopularityPenalty = 10.0

	// maxRetries bounds how many times a failed item is requeued before
	// being dropped permanently.
	maxRetries = 3
)

// ErrEmptyURL is returned when Enqueue is given an empty URL.
var ErrEmptyURL = errors.New("frontier: url must not be empty")

// ErrNotClaimed is returned when Complete or Fail is called for an item
// that is not currently claimed by the calling worker.
var ErrNotClaimed = errors.New("frontier: item not claimed by this worker")

// store is the subset of the coordination store facade the frontier needs.
type store interface {
	KVSetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	KVCompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	KVGet(ctx context.Context, key string) (string, bool, error)
	KVSet(ctx context.Context, key, value string, ttl time.Duration) error
	KVScan(ctx context.Context, prefix string) ([]string, error)
	ZSetAdd(ctx context.Context, key string, score float64, member string) error
	ZSetPopMin(ctx context.Context, key string) (member string, score float64, ok bool, err error)
	ZSetCard(ctx context.Context, key string) (int64, error)
}

// membershipFilter is the subset of the approximate URL filter (C1) the
// frontier consults before admitting a new URL.
type membershipFilter interface {
	Contains(ctx context.Context, url string) (bool, error)
	Insert(ctx context.Context, url string) error
}

// Frontier is the priority queue described in SPEC_FULL.md §4.3: a
// coordination-store ZSET of pending items plus a claim TTL protocol that
// lets any worker recover items abandoned by a crashed peer.
type Frontier struct {
	store     store
	filter    membershipFilter
	claimTTL  time.Duration
}

// Config controls claim behavior.
type Config struct {
	// ClaimTTL bounds how long a worker may hold a claimed item before it
	// is eligible for recovery by Sweep.
	ClaimTTL time.Duration
}

// DefaultConfig returns the documented default claim TTL.
func DefaultConfig() Config {
	return Config{ClaimTTL: 10 * time.Minute}
}

// New constructs a Frontier bound to the given coordination store and
// membership filter.
func New(s store, f membershipFilter, cfg Config) *Frontier {
	if cfg.ClaimTTL <= 0 {
		cfg = DefaultConfig()
	}
	return &Frontier{store: s, filter: f, claimTTL: cfg.ClaimTTL}
}

// Enqueue admits a URL into the frontier at the given priority (lower
// score = earlier dequeue), after normalizing it and checking the
// membership filter to skip URLs already seen. Returns (false, nil) when
// the URL was skipped as a probable duplicate.
func (f *Frontier) Enqueue(ctx context.Context, parentURL, rawURL string, depth int, priority float64) (bool, error) {
	if rawURL == "" {
		return false, ErrEmptyURL
	}

	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return false, fmt.Errorf("frontier: enqueue: %w", err)
	}

	seen, err := f.filter.Contains(ctx, normalized)
	if err != nil {
		return false, fmt.Errorf("frontier: enqueue: membership check: %w", err)
	}
	if seen {
		return false, nil
	}

	host, err := ExtractHost(normalized)
	if err != nil {
		return false, fmt.Errorf("frontier: enqueue: %w", err)
	}

	item := domain.FrontierItem{
		URL:       normalized,
		ParentURL: parentURL,
		Depth:     depth,
		Host:      host,
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("frontier: enqueue: marshal: %w", err)
	}

	if err := f.filter.Insert(ctx, normalized); err != nil {
		return false, fmt.Errorf("frontier: enqueue: filter insert: %w", err)
	}
	if err := f.store.ZSetAdd(ctx, frontierKey, priority, string(payload)); err != nil {
		return false, fmt.Errorf("frontier: enqueue: %w", err)
	}
	return true, nil
}

// HostPenalty returns the popularity penalty ln(1+observedCount), clamped
// to [0, 10], for a host that has been observed observedCount times. A
// heavily-linked host accumulates a growing penalty so it doesn't crowd
// out the rest of the frontier.
func HostPenalty(observedCount int64) float64 {
	penalty := math.Log(1 + float64(observedCount))
	if penalty > maxHostPopularityPenalty {
		penalty = maxHostPopularityPenalty
	}
	if penalty < 0 {
		penalty = 0
	}
	return penalty
}

// ChildPriority computes a child URL's inherited priority: the parent's
// priority plus one, plus HostPenalty(observedCount).
func ChildPriority(parentPriority float64, observedCount int64) float64 {
	return parentPriority + 1 + HostPenalty(observedCount)
}

// Claim atomically pops the lowest-priority item and records an in-flight
// claim for workerID. Returns (nil, false, nil) when the frontier is empty.
func (f *Frontier) Claim(ctx context.Context, workerID string) (*domain.InflightClaim, bool, error) {
	member, score, ok, err := f.store.ZSetPopMin(ctx, frontierKey)
	if err != nil {
		return nil, false, fmt.Errorf("frontier: claim: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var item domain.FrontierItem
	if err := json.Unmarshal([]byte(member), &item); err != nil {
		return nil, false, fmt.Errorf("frontier: claim: unmarshal: %w", err)
	}

	claim := domain.InflightClaim{
		WorkerID:  workerID,
		ClaimedAt: time.Now(),
		Priority:  score,
		Item:      item,
	}
	payload, err := json.Marshal(claim)
	if err != nil {
		return nil, false, fmt.Errorf("frontier: claim: marshal: %w", err)
	}

	if err := f.store.KVSet(ctx, inflightKey(item.URL), string(payload), f.claimTTL); err != nil {
		return nil, false, fmt.Errorf("frontier: claim: %w", err)
	}
	return &claim, true, nil
}

// Complete removes the in-flight claim for url, provided it is still owned
// by workerID.
func (f *Frontier) Complete(ctx context.Context, workerID, url string) error {
	raw, claim, ok, err := f.getClaim(ctx, url)
	if err != nil {
		return fmt.Errorf("frontier: complete: %w", err)
	}
	if !ok || claim.WorkerID != workerID {
		return ErrNotClaimed
	}

	if _, err := f.store.KVCompareAndDelete(ctx, inflightKey(url), raw); err != nil {
		return fmt.Errorf("frontier: complete: %w", err)
	}
	return nil
}

// Fail handles a failed fetch attempt for url: if the item's retry count is
// below the configured maximum, it is re-enqueued at a lowered priority
// (deprioritized, i.e. a higher score) so other work is tried first;
// otherwise it is dropped permanently. Returns true if the item was
// requeued, false if it was dropped.
func (f *Frontier) Fail(ctx context.Context, workerID, url string) (bool, error) {
	raw, claim, ok, err := f.getClaim(ctx, url)
	if err != nil {
		return false, fmt.Errorf("frontier: fail: %w", err)
	}
	if !ok || claim.WorkerID != workerID {
		return false, ErrNotClaimed
	}

	if _, err := f.store.KVCompareAndDelete(ctx, inflightKey(url), raw); err != nil {
		return false, fmt.Errorf("frontier: fail: %w", err)
	}

	if claim.RetryCount >= maxRetries {
		return false, nil
	}

	claim.RetryCount++
	payload, err := json.Marshal(claim.Item)
	if err != nil {
		return false, fmt.Errorf("frontier: fail: marshal: %w", err)
	}
	// Deprioritize on retry: push the item back with an additive penalty
	// proportional to the retry count, so persistently-failing hosts sink.
	requeuePriority := claim.Priority + float64(claim.RetryCount)
	if err := f.store.ZSetAdd(ctx, frontierKey, requeuePriority, string(payload)); err != nil {
		return false, fmt.Errorf("frontier: fail: requeue: %w", err)
	}
	return true, nil
}

// getClaim is a helper shared by Complete and Fail; it does not itself
// validate ownership. It returns the raw stored value alongside the
// decoded claim so callers can compare-and-delete against the exact value.
func (f *Frontier) getClaim(ctx context.Context, url string) (string, domain.InflightClaim, bool, error) {
	val, ok, err := f.store.KVGet(ctx, inflightKey(url))
	if err != nil || !ok || val == "" {
		return "", domain.InflightClaim{}, false, err
	}
	var claim domain.InflightClaim
	if err := json.Unmarshal([]byte(val), &claim); err != nil {
		return "", domain.InflightClaim{}, false, fmt.Errorf("unmarshal claim: %w", err)
	}
	return val, claim, true, nil
}

// Sweep scans in-flight claims and re-enqueues any whose claim has expired
// beyond the frontier's claimTTL, recovering work abandoned by a crashed
// worker. Any worker may run Sweep periodically; callers should add jitter
// between invocations so peers don't all sweep in lockstep.
func (f *Frontier) Sweep(ctx context.Context) (int, error) {
	keys, err := f.store.KVScan(ctx, inflightPrefix)
	if err != nil {
		return 0, fmt.Errorf("frontier: sweep: %w", err)
	}

	recovered := 0
	now := time.Now()
	for _, key := range keys {
		val, ok, err := f.store.KVGet(ctx, key)
		if err != nil || !ok || val == "" {
			continue
		}

		var claim domain.InflightClaim
		if err := json.Unmarshal([]byte(val), &claim); err != nil {
			continue
		}
		if now.Sub(claim.ClaimedAt) < f.claimTTL {
			continue
		}

		if _, err := f.store.KVCompareAndDelete(ctx, key, val); err != nil {
			continue
		}

		payload, err := json.Marshal(claim.Item)
		if err != nil {
			continue
		}
		requeuePriority := claim.Priority + float64(claim.RetryCount+1)
		if err := f.store.ZSetAdd(ctx, frontierKey, requeuePriority, string(payload)); err != nil {
			continue
		}
		recovered++
	}
	return recovered, nil
}

// SweepJitter returns a randomized delay in [base, base+spread) suitable
// for staggering periodic Sweep calls across worker processes.
func SweepJitter(base, spread time.Duration) time.Duration {
	if spread <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(spread)))
}

// Depth returns the current number of pending items in the frontier.
func (f *Frontier) Depth(ctx context.Context) (int64, error) {
	n, err := f.store.ZSetCard(ctx, frontierKey)
	if err != nil {
		return 0, fmt.Errorf("frontier: depth: %w", err)
	}
	return n, nil
}

func inflightKey(url string) string { return inflightPrefix + url }

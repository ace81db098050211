package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saurabh6354/distributed-web-crawler/internal/extract"
	"github.com/saurabh6354/distributed-web-crawler/internal/frontier"
	"github.com/saurabh6354/distributed-web-crawler/internal/logger"
	"github.com/saurabh6354/distributed-web-crawler/internal/metrics"
	"github.com/saurabh6354/distributed-web-crawler/internal/politeness"
	"github.com/saurabh6354/distributed-web-crawler/internal/storage"
	"github.com/saurabh6354/distributed-web-crawler/internal/storage/searchindex"
)

// PoolState represents the current state of the pool.
type PoolState int32

const (
	// PoolStateStopped means the pool is not running.
	PoolStateStopped PoolState = iota

	// PoolStateRunning means the pool is actively claiming and processing.
	PoolStateRunning

	// PoolStateDraining means the pool is shutting down gracefully: no new
	// claims are made, but in-flight fetches are allowed to finish.
	PoolStateDraining
)

func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Deps are the collaborators a Pool drives its workers against. None of
// Frontier, Politeness, Storage, or Extractor may be nil.
type Deps struct {
	Frontier    *frontier.Frontier
	Politeness  *politeness.Controller
	Storage     *storage.Store
	Extractor   *extract.Fetcher
	SearchIndex *searchindex.Index // optional: nil disables the search mirror
	Logger      logger.Interface
}

// Pool runs Config.PoolSize independent worker goroutines, each looping
// through claim→robots→lease→fetch→release→parse→enqueue→persist→complete
// against the shared Deps. Workers are symmetric: there is no leader
// goroutine and no in-process mutex between them (SPEC_FULL.md §2, §5).
type Pool struct {
	config Config

	frontier    *frontier.Frontier
	politeness  *politeness.Controller
	storage     *storage.Store
	extractor   *extract.Fetcher
	searchIndex *searchindex.Index
	logger      logger.Interface

	workerID string
	workers  []*Worker

	state  atomic.Int32
	wg     sync.WaitGroup
	cancel context.CancelFunc

	pagesCompleted atomic.Int64

	hostMu     sync.Mutex
	hostCounts map[string]int64

	requests *metrics.Recorder
}

// NewPool validates cfg and deps and constructs a Pool in the stopped
// state. Call Start to begin claiming.
func NewPool(cfg Config, deps Deps) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	if deps.Frontier == nil || deps.Politeness == nil || deps.Storage == nil || deps.Extractor == nil {
		return nil, errors.New("worker: frontier, politeness, storage, and extractor deps are required")
	}
	if deps.Logger == nil {
		return nil, errors.New("worker: logger dep is required")
	}

	p := &Pool{
		config:      cfg,
		frontier:    deps.Frontier,
		politeness:  deps.Politeness,
		storage:     deps.Storage,
		extractor:   deps.Extractor,
		searchIndex: deps.SearchIndex,
		logger:      deps.Logger,
		workerID:    generateWorkerID(),
		hostCounts:  make(map[string]int64),
		requests:    metrics.NewRecorder(),
	}
	p.state.Store(int32(PoolStateStopped))
	return p, nil
}

// generateWorkerID builds the stable per-process worker identity described
// in SPEC_FULL.md §4.5: hostname + pid + a short random suffix.
func generateWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.New().String()[:8])
}

// WorkerID returns this pool's stable worker identity, used as the
// frontier claimant for every goroutine in the pool.
func (p *Pool) WorkerID() string { return p.workerID }

// Requests returns the pool's HTTP-level request outcome counters.
func (p *Pool) Requests() metrics.Snapshot { return p.requests.Snapshot() }

// Start launches Config.PoolSize worker goroutines. ctx governs the whole
// pool's lifetime; cancelling it (or calling Stop) ends the claim loop.
func (p *Pool) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return errors.New("worker: pool is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.workers = make([]*Worker, p.config.PoolSize)
	for i := 0; i < p.config.PoolSize; i++ {
		w := newWorker(i, p)
		p.workers[i] = w
		p.wg.Add(1)
		go w.run(runCtx)
	}

	p.logger.Info("worker pool started", "pool_size", p.config.PoolSize, "worker_id", p.workerID)
	return nil
}

// Stop signals all workers to stop claiming and waits up to
// Config.DrainTimeout (or until ctx is cancelled, whichever is first) for
// in-flight fetches to finish.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return errors.New("worker: pool is not running")
	}

	p.logger.Info("worker pool draining")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool stop: context cancelled before drain completed")
	case <-time.After(p.config.DrainTimeout):
		p.logger.Warn("worker pool stop: drain timeout exceeded")
	}

	if err := p.storage.Close(context.Background()); err != nil {
		p.logger.Error("worker pool stop: storage flush failed", "error", err)
	}

	p.state.Store(int32(PoolStateStopped))
	return nil
}

// State returns the current pool state.
func (p *Pool) State() PoolState { return PoolState(p.state.Load()) }

// IsRunning reports whether the pool is actively claiming work.
func (p *Pool) IsRunning() bool { return p.State() == PoolStateRunning }

// Size returns the configured pool size.
func (p *Pool) Size() int { return p.config.PoolSize }

// pagesBudgetReached reports whether Config.MaxPages has been reached; a
// MaxPages of 0 means unlimited.
func (p *Pool) pagesBudgetReached() bool {
	if p.config.MaxPages <= 0 {
		return false
	}
	return p.pagesCompleted.Load() >= p.config.MaxPages
}

// hostPenalty returns the natural-log host-popularity penalty for host,
// clamped to [0, 10], tracked as an in-process counter only — SPEC_FULL.md
// §9 explicitly calls out this counter as per-process and eventually
// consistent across workers, not a coordination-store value.
func (p *Pool) hostPenalty(host string) float64 {
	p.hostMu.Lock()
	p.hostCounts[host]++
	count := p.hostCounts[host]
	p.hostMu.Unlock()
	return frontier.HostPenalty(count)
}

// Stats returns a snapshot of pool-wide and per-worker counters.
func (p *Pool) Stats() PoolStats {
	workerStats := make([]Stats, len(p.workers))
	var processed, succeeded, failed int64
	busy := 0
	for i, w := range p.workers {
		s := w.Stats()
		workerStats[i] = s
		processed += s.PagesProcessed
		succeeded += s.PagesSucceeded
		failed += s.PagesFailed
		if s.State == WorkerStateBusy {
			busy++
		}
	}

	return PoolStats{
		State:          p.State(),
		PoolSize:       p.config.PoolSize,
		BusyWorkers:    busy,
		IdleWorkers:    len(p.workers) - busy,
		PagesProcessed: processed,
		PagesSucceeded: succeeded,
		PagesFailed:    failed,
		Workers:        workerStats,
	}
}

// PoolStats holds pool-wide statistics.
type PoolStats struct {
	State          PoolState
	PoolSize       int
	BusyWorkers    int
	IdleWorkers    int
	PagesProcessed int64
	PagesSucceeded int64
	PagesFailed    int64
	Workers        []Stats
}

// SuccessRate returns the pool's success rate as a percentage.
func (s PoolStats) SuccessRate() float64 {
	if s.PagesProcessed == 0 {
		return 0
	}
	return float64(s.PagesSucceeded) / float64(s.PagesProcessed) * 100
}

// Utilization returns the fraction of workers currently busy, as a
// percentage.
func (s PoolStats) Utilization() float64 {
	if s.PoolSize == 0 {
		return 0
	}
	return float64(s.BusyWorkers) / float64(s.PoolSize) * 100
}

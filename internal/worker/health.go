package worker

import (
	"context"
	"sync"
	"time"

	"github.com/saurabh6354/distributed-web-crawler/internal/logger"
)

// HealthStatus represents the health status of the pool.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"

	// degradedThreshold is the minimum healthy ratio to be considered
	// degraded rather than unhealthy.
	degradedThreshold = 0.5

	// stuckAfterFetchMultiple flags a worker as stuck once it has been busy
	// this many times its configured fetch timeout — well past the point a
	// well-behaved fetch context would have been cancelled.
	stuckAfterFetchMultiple = 4
)

func (s HealthStatus) String() string { return string(s) }

// HealthCheck is one point-in-time snapshot of pool health.
type HealthCheck struct {
	Status           HealthStatus
	Timestamp        time.Time
	PoolState        PoolState
	TotalWorkers     int
	HealthyWorkers   int
	UnhealthyWorkers int
	BusyWorkers      int
	IdleWorkers      int
	Details          []WorkerHealthDetail
}

// WorkerHealthDetail is one worker's contribution to a HealthCheck.
type WorkerHealthDetail struct {
	WorkerID    int
	State       WorkerState
	IsHealthy   bool
	CurrentURL  string
	PageRunning time.Duration
	LastError   string
}

// HealthMonitor periodically polls a Pool's Stats and derives an overall
// health verdict, backing the process's liveness/readiness endpoint.
type HealthMonitor struct {
	pool     *Pool
	logger   logger.Interface
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	lastCheck *HealthCheck
}

// NewHealthMonitor constructs a HealthMonitor for pool, polling every
// interval (DefaultHealthCheckInterval if interval <= 0).
func NewHealthMonitor(pool *Pool, interval time.Duration, log logger.Interface) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	return &HealthMonitor{pool: pool, logger: log, interval: interval, stopCh: make(chan struct{})}
}

// DefaultHealthCheckInterval is how often HealthMonitor polls by default.
const DefaultHealthCheckInterval = 30 * time.Second

// Start begins polling in a background goroutine.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop halts polling and waits for the background goroutine to exit.
func (m *HealthMonitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Check performs an immediate health check and records it as LastCheck.
func (m *HealthMonitor) Check() HealthCheck {
	stats := m.pool.Stats()
	stuckAfter := m.pool.config.FetchTimeout * stuckAfterFetchMultiple

	healthy, unhealthy := 0, 0
	details := make([]WorkerHealthDetail, len(stats.Workers))

	for i, ws := range stats.Workers {
		isHealthy := ws.IsHealthy(stuckAfter)
		if isHealthy {
			healthy++
		} else {
			unhealthy++
		}

		var lastErr string
		if ws.LastError != nil {
			lastErr = ws.LastError.Error()
		}

		var running time.Duration
		if ws.State == WorkerStateBusy && !ws.PageStartedAt.IsZero() {
			running = time.Since(ws.PageStartedAt)
		}

		details[i] = WorkerHealthDetail{
			WorkerID:    ws.ID,
			State:       ws.State,
			IsHealthy:   isHealthy,
			CurrentURL:  ws.CurrentURL,
			PageRunning: running,
			LastError:   lastErr,
		}
	}

	check := HealthCheck{
		Status:           determineStatus(stats.PoolSize, healthy, unhealthy),
		Timestamp:        time.Now(),
		PoolState:        stats.State,
		TotalWorkers:     stats.PoolSize,
		HealthyWorkers:   healthy,
		UnhealthyWorkers: unhealthy,
		BusyWorkers:      stats.BusyWorkers,
		IdleWorkers:      stats.IdleWorkers,
		Details:          details,
	}

	m.mu.Lock()
	m.lastCheck = &check
	m.mu.Unlock()
	return check
}

// LastCheck returns the most recently recorded health check, or nil if
// none has run yet.
func (m *HealthMonitor) LastCheck() *HealthCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCheck
}

// IsHealthy reports whether the last recorded check was healthy or
// degraded (not unhealthy, and not "no check has run yet").
func (m *HealthMonitor) IsHealthy() bool {
	check := m.LastCheck()
	if check == nil {
		return false
	}
	return check.Status == HealthStatusHealthy || check.Status == HealthStatusDegraded
}

func determineStatus(total, healthy, unhealthy int) HealthStatus {
	if total == 0 {
		return HealthStatusUnhealthy
	}
	if unhealthy == 0 {
		return HealthStatusHealthy
	}
	if float64(healthy)/float64(total) >= degradedThreshold {
		return HealthStatusDegraded
	}
	return HealthStatusUnhealthy
}

func (m *HealthMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.performCheck()
	for {
		select {
		case <-ticker.C:
			m.performCheck()
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

func (m *HealthMonitor) performCheck() {
	check := m.Check()
	switch check.Status {
	case HealthStatusHealthy:
		m.logger.Debug("pool health check: healthy", "total_workers", check.TotalWorkers, "busy_workers", check.BusyWorkers)
	case HealthStatusDegraded:
		m.logger.Warn("pool health check: degraded", "healthy_workers", check.HealthyWorkers, "unhealthy_workers", check.UnhealthyWorkers)
	case HealthStatusUnhealthy:
		m.logger.Error("pool health check: unhealthy", "healthy_workers", check.HealthyWorkers, "unhealthy_workers", check.UnhealthyWorkers)
	}
}

// Package health exposes the worker process's liveness/readiness surface:
// a minimal gin server serving /healthz (coordination + document store
// reachability) and /metrics (plain counters), trimmed from the reference
// codebase's much larger admin HTTP surface down to the bare contract §6's
// exit-code design implies a long-running process needs.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/saurabh6354/distributed-web-crawler/internal/logger"
	"github.com/saurabh6354/distributed-web-crawler/internal/metrics"
	"github.com/saurabh6354/distributed-web-crawler/internal/worker"
)

const pingTimeout = 2 * time.Second

// Stats is the set of worker-pool counters /metrics reports. It is
// satisfied by *worker.Pool.
type Stats interface {
	Stats() worker.PoolStats
	Requests() metrics.Snapshot
}

// Server serves /healthz and /metrics on a dedicated address.
type Server struct {
	redis   *redis.Client
	db      *sqlx.DB
	pool    Stats
	logger  logger.Interface
	httpSrv *http.Server
}

// New constructs a Server. pool may be nil before the worker pool has
// started; /metrics then reports zero counters.
func New(addr string, redisClient *redis.Client, db *sqlx.DB, pool Stats, log logger.Interface) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{redis: redisClient, db: db, pool: pool, logger: log}
	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", s.handleMetrics)

	s.httpSrv = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start runs the HTTP server in a background goroutine and returns an error
// channel that receives at most one value, only on unexpected server
// failure (not on graceful Shutdown).
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the server's HTTP handler for in-process testing,
// bypassing the network listener Start sets up.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	status := gin.H{}
	healthy := true

	if err := s.redis.Ping(ctx).Err(); err != nil {
		status["coordination_store"] = err.Error()
		healthy = false
	} else {
		status["coordination_store"] = "ok"
	}

	if err := s.db.PingContext(ctx); err != nil {
		status["document_store"] = err.Error()
		healthy = false
	} else {
		status["document_store"] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleMetrics(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	stats := s.pool.Stats()
	requests := s.pool.Requests()
	c.JSON(http.StatusOK, gin.H{
		"pool_size":             stats.PoolSize,
		"busy_workers":          stats.BusyWorkers,
		"idle_workers":          stats.IdleWorkers,
		"pages_processed":       stats.PagesProcessed,
		"pages_succeeded":       stats.PagesSucceeded,
		"pages_failed":          stats.PagesFailed,
		"success_rate":          stats.SuccessRate(),
		"utilization":           stats.Utilization(),
		"successful_requests":   requests.SuccessfulRequests,
		"failed_requests":       requests.FailedRequests,
		"rate_limited_requests": requests.RateLimitedRequests,
	})
}

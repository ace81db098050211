package health_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/saurabh6354/distributed-web-crawler/internal/coordstore"
	"github.com/saurabh6354/distributed-web-crawler/internal/health"
	"github.com/saurabh6354/distributed-web-crawler/internal/logger"
	"github.com/saurabh6354/distributed-web-crawler/internal/metrics"
	"github.com/saurabh6354/distributed-web-crawler/internal/worker"
)

// fakeStats satisfies health.Stats without a real worker.Pool.
type fakeStats struct {
	stats    worker.PoolStats
	requests metrics.Snapshot
}

func (f fakeStats) Stats() worker.PoolStats     { return f.stats }
func (f fakeStats) Requests() metrics.Snapshot { return f.requests }

func testLogger(t *testing.T) logger.Interface {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: logger.ErrorLevel, Encoding: "console"})
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	return log
}

func newRedisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CRAWLER_TEST_REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	store, err := coordstore.New(coordstore.Config{Address: addr, DB: 15})
	if err != nil {
		t.Skipf("skipping: could not connect to redis at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store.Client()
}

func TestHandleMetrics_NilPool(t *testing.T) {
	srv := health.New(":0", nil, nil, nil, testLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "{}" {
		t.Errorf("body = %q, want empty JSON object", rec.Body.String())
	}
}

func TestHandleMetrics_ReportsPoolAndRequestCounters(t *testing.T) {
	fake := fakeStats{
		stats: worker.PoolStats{
			PoolSize: 4, BusyWorkers: 1, IdleWorkers: 3,
			PagesProcessed: 10, PagesSucceeded: 9, PagesFailed: 1,
		},
		requests: metrics.Snapshot{SuccessfulRequests: 9, FailedRequests: 1, RateLimitedRequests: 0},
	}
	srv := health.New(":0", nil, nil, fake, testLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["pages_processed"].(float64) != 10 {
		t.Errorf("pages_processed = %v, want 10", body["pages_processed"])
	}
	if body["successful_requests"].(float64) != 9 {
		t.Errorf("successful_requests = %v, want 9", body["successful_requests"])
	}
}

func TestHandleHealthz_ReportsBackendStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping health integration test in short mode")
	}

	redisClient := newRedisTestClient(t)

	dsn := os.Getenv("CRAWLER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skipping: CRAWLER_TEST_POSTGRES_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	srv := health.New(":0", redisClient, db, nil, testLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(context.Background())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := health.New("127.0.0.1:0", nil, nil, nil, testLogger(t))
	errCh := srv.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("unexpected server error: %v", err)
	default:
	}
}

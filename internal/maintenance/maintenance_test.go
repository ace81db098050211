package maintenance

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/saurabh6354/distributed-web-crawler/internal/coordination"
	"github.com/saurabh6354/distributed-web-crawler/internal/coordstore"
	"github.com/saurabh6354/distributed-web-crawler/internal/extract"
	"github.com/saurabh6354/distributed-web-crawler/internal/filter"
	"github.com/saurabh6354/distributed-web-crawler/internal/frontier"
	"github.com/saurabh6354/distributed-web-crawler/internal/logger"
	"github.com/saurabh6354/distributed-web-crawler/internal/politeness"
	"github.com/saurabh6354/distributed-web-crawler/internal/storage"
	"github.com/saurabh6354/distributed-web-crawler/internal/worker"
)

// newTestRunner builds a Runner against real backends, following this
// codebase's two integration-test conventions: a skip-if-unavailable real
// Redis (matching coordstore/filter's own tests) and a throwaway Postgres
// container (matching internal/storage's).
func newTestRunner(t *testing.T) (*Runner, *filter.Filter) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping maintenance integration test in short mode")
	}

	addr := os.Getenv("CRAWLER_TEST_REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	store, err := coordstore.New(coordstore.Config{Address: addr, DB: 15})
	if err != nil {
		t.Skipf("skipping: could not connect to redis at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f, err := filter.New(store, "test:maintenance:filter", filter.Config{Capacity: 2, ErrorRate: 0.01})
	if err != nil {
		t.Fatalf("filter.New: %v", err)
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("crawler_test"),
		tcpostgres.WithUsername("crawler"),
		tcpostgres.WithPassword("crawler"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	if err != nil {
		t.Skipf("skipping: postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	log, err := logger.New(&logger.Config{Level: logger.ErrorLevel, Encoding: "console"})
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}

	fr := frontier.New(store, f, frontier.Config{ClaimTTL: 10 * time.Minute})
	pc := politeness.New(store, http.DefaultClient, "maintenance-test/1.0", time.Hour, time.Second, coordination.LeaseConfig{
		TTL: 30 * time.Second, RetryDelay: 100 * time.Millisecond, MaxRetries: 10,
	})
	st := storage.New(db, log, storage.Config{BatchSize: 50, BatchAge: time.Minute})
	t.Cleanup(func() { _ = st.Close(ctx) })
	fetcher := extract.New("maintenance-test/1.0", 5*time.Second, http.DefaultTransport)

	pool, err := worker.NewPool(worker.Config{
		PoolSize: 1, MaxPages: 0, UserAgent: "maintenance-test/1.0",
		FetchTimeout: 5 * time.Second, DrainTimeout: worker.DefaultDrainTimeout,
		IdleBackoff: worker.DefaultIdleBackoff, MaxIdlePolls: worker.DefaultMaxIdlePolls,
		HostClaimBudget: worker.DefaultHostClaimBudget,
	}, worker.Deps{
		Frontier: fr, Politeness: pc, Storage: st, Extractor: fetcher, Logger: log,
	})
	if err != nil {
		t.Fatalf("worker.NewPool: %v", err)
	}

	return New(pool, f, log), f
}

func TestRunner_TickLogsStatsWithoutSaturation(t *testing.T) {
	r, _ := newTestRunner(t)
	r.tick(context.Background())
}

func TestRunner_TickWarnsOnSaturation(t *testing.T) {
	r, f := newTestRunner(t)
	ctx := context.Background()

	// Capacity was set to 2 in newTestRunner; insert past it.
	for i, url := range []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"} {
		if err := f.Insert(ctx, url); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	inserted, err := f.InsertedCount(ctx)
	if err != nil {
		t.Fatalf("InsertedCount: %v", err)
	}
	if inserted <= f.Capacity() {
		t.Fatalf("test setup invalid: inserted=%d must exceed capacity=%d", inserted, f.Capacity())
	}

	// tick should log a saturation warning rather than error or panic.
	r.tick(ctx)
}

func TestRunner_StartAndStop(t *testing.T) {
	r, _ := newTestRunner(t)

	if err := r.Start(context.Background(), "@every 50ms"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	r.Stop()
}

func TestRunner_SkipsSaturationCheckWithoutFilter(t *testing.T) {
	r, _ := newTestRunner(t)
	r.filter = nil
	r.tick(context.Background())
}

// Package crawl implements the crawl command: it wires every coordination,
// politeness, frontier, storage, and worker-pool component into a running
// process and drives it until the configured page budget is reached or an
// interrupt signal arrives.
package crawl

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/saurabh6354/distributed-web-crawler/internal/apperrors"
	"github.com/saurabh6354/distributed-web-crawler/internal/config"
	"github.com/saurabh6354/distributed-web-crawler/internal/coordination"
	"github.com/saurabh6354/distributed-web-crawler/internal/coordstore"
	"github.com/saurabh6354/distributed-web-crawler/internal/database"
	"github.com/saurabh6354/distributed-web-crawler/internal/extract"
	"github.com/saurabh6354/distributed-web-crawler/internal/filter"
	"github.com/saurabh6354/distributed-web-crawler/internal/frontier"
	"github.com/saurabh6354/distributed-web-crawler/internal/health"
	loggerpkg "github.com/saurabh6354/distributed-web-crawler/internal/logger"
	"github.com/saurabh6354/distributed-web-crawler/internal/maintenance"
	"github.com/saurabh6354/distributed-web-crawler/internal/politeness"
	"github.com/saurabh6354/distributed-web-crawler/internal/storage"
	"github.com/saurabh6354/distributed-web-crawler/internal/storage/searchindex"
	"github.com/saurabh6354/distributed-web-crawler/internal/worker"
)

// maintenanceSchedule ticks once a minute; non-critical, so a coarse
// interval is fine.
const maintenanceSchedule = "*/1 * * * *"

// seedURLs holds --seed values collected from the command line.
var seedURLs []string

// Command returns the crawl command for use in the root command.
// resolveConfigPath returns the config file path to load (the root
// command's --config/CONFIG_PATH resolution).
func Command(resolveConfigPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run a worker process against the coordination stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd.Context(), config.Path(resolveConfigPath()))
			os.Exit(apperrors.ExitCode(err))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&seedURLs, "seed", nil, "seed URL to enqueue before starting (repeatable)")
	return cmd
}

// run loads configuration, constructs every component, and blocks until
// the page budget is reached or the process is interrupted.
func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return apperrors.Misconfiguration(err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return apperrors.Misconfiguration(err)
	}
	log = log.WithComponent("crawl")

	redisStore, err := coordstore.New(coordstore.Config{
		Address: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
	})
	if err != nil {
		return apperrors.CoordinationStoreUnreachable(err)
	}
	defer redisStore.Close()

	db, err := database.NewPostgresConnectionFromDSN(cfg.DSN())
	if err != nil {
		return apperrors.DocumentStoreUnreachable(err)
	}

	urlFilter, err := filter.New(redisStore, "crawler:filter", filter.Config{
		Capacity: int64(cfg.FilterCapacity), ErrorRate: cfg.FilterErrorRate,
	})
	if err != nil {
		return apperrors.Misconfiguration(err)
	}

	var searchIdx *searchindex.Index
	if cfg.Elasticsearch.Enabled() {
		searchIdx, err = searchindex.New(searchindex.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
		}, log)
		if err != nil {
			log.Warn("crawl: search index unavailable, continuing without it", "error", err)
			searchIdx = nil
		}
	}

	fr := frontier.New(redisStore, urlFilter, frontier.Config{ClaimTTL: cfg.ClaimTTL})
	for _, seed := range seedURLs {
		if _, enqueueErr := fr.Enqueue(ctx, "", seed, 0, 0); enqueueErr != nil {
			log.Warn("crawl: failed to enqueue seed", "url", seed, "error", enqueueErr)
		}
	}

	pc := politeness.New(redisStore, http.DefaultClient, cfg.UserAgent, cfg.RobotsCacheTTL, cfg.DefaultCrawlDelay, coordination.LeaseConfig{
		TTL:        cfg.LeaseTTL,
		RetryDelay: coordination.DefaultRetryDelay,
		MaxRetries: coordination.DefaultMaxRetries,
	})

	store := storage.New(db, log, storage.Config{BatchSize: cfg.BatchSize, BatchAge: cfg.BatchAge})
	defer store.Close(context.Background())

	transport := &http.Transport{MaxIdleConnsPerHost: cfg.WorkerPoolSize}
	fetcher := extract.New(cfg.UserAgent, cfg.FetchTimeout, transport)

	pool, err := worker.NewPool(worker.Config{
		PoolSize:        cfg.WorkerPoolSize,
		MaxPages:        cfg.MaxPages,
		UserAgent:       cfg.UserAgent,
		FetchTimeout:    cfg.FetchTimeout,
		DrainTimeout:    worker.DefaultDrainTimeout,
		IdleBackoff:     worker.DefaultIdleBackoff,
		MaxIdlePolls:    worker.DefaultMaxIdlePolls,
		HostClaimBudget: worker.DefaultHostClaimBudget,
	}, worker.Deps{
		Frontier: fr, Politeness: pc, Storage: store, Extractor: fetcher,
		SearchIndex: searchIdx, Logger: log,
	})
	if err != nil {
		return apperrors.Misconfiguration(err)
	}

	healthSrv := health.New(cfg.HealthAddr, redisStore.Client(), db, pool, log)
	healthErrCh := healthSrv.Start()

	maint := maintenance.New(pool, urlFilter, log)
	if maintErr := maint.Start(ctx, maintenanceSchedule); maintErr != nil {
		log.Warn("crawl: maintenance scheduler failed to start", "error", maintErr)
	}

	if startErr := pool.Start(ctx); startErr != nil {
		return apperrors.Misconfiguration(startErr)
	}
	log.Info("crawl: worker pool started", "pool_size", cfg.WorkerPoolSize, "worker_id", pool.WorkerID())

	runErr := waitForShutdown(ctx, pool, healthErrCh, log)

	maint.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	if stopErr := pool.Stop(shutdownCtx); stopErr != nil {
		log.Error("crawl: pool stop failed", "error", stopErr)
	}

	renderStatsTable(pool.Stats())
	return runErr
}

// waitForShutdown blocks until the pool drains itself (page budget reached),
// an interrupt signal arrives, or the health server fails unexpectedly.
func waitForShutdown(ctx context.Context, pool *worker.Pool, healthErrCh <-chan error, log loggerpkg.Interface) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.Info("crawl: shutdown signal received", "signal", sig.String())
			return nil
		case err := <-healthErrCh:
			log.Error("crawl: health server failed", "error", err)
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !pool.IsRunning() {
				log.Info("crawl: page budget reached, shutting down")
				return nil
			}
		}
	}
}

func newLogger(cfg config.LoggingConfig) (loggerpkg.Interface, error) {
	return loggerpkg.New(&loggerpkg.Config{
		Level:    loggerpkg.Level(cfg.Level),
		Encoding: cfg.Format,
	})
}

func renderStatsTable(stats worker.PoolStats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"State", "Pool Size", "Busy", "Idle", "Processed", "Succeeded", "Failed", "Success Rate"})
	t.AppendRow(table.Row{
		stats.State.String(), stats.PoolSize, stats.BusyWorkers, stats.IdleWorkers,
		stats.PagesProcessed, stats.PagesSucceeded, stats.PagesFailed,
		fmt.Sprintf("%.1f%%", stats.SuccessRate()),
	})
	t.Render()
}

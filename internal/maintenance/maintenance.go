// Package maintenance runs low-frequency, non-critical background checks
// against a running worker pool: a periodic stats log line and a Bloom
// filter saturation check, grounded on the reference codebase's dependency
// on robfig/cron for its scheduler component. Only the dependency and the
// "periodic tick" pattern carries over, not its feed-polling logic.
package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/saurabh6354/distributed-web-crawler/internal/filter"
	"github.com/saurabh6354/distributed-web-crawler/internal/logger"
	"github.com/saurabh6354/distributed-web-crawler/internal/worker"
)

// Runner periodically logs pool statistics and checks filter saturation.
type Runner struct {
	cron   *cron.Cron
	pool   *worker.Pool
	filter *filter.Filter
	logger logger.Interface
}

// New constructs a Runner. filter may be nil, in which case the saturation
// check is skipped.
func New(pool *worker.Pool, f *filter.Filter, log logger.Interface) *Runner {
	return &Runner{
		cron:   cron.New(),
		pool:   pool,
		filter: f,
		logger: log,
	}
}

// Start schedules the periodic ticks and begins running them. spec is a
// standard 5-field cron expression (e.g. "*/1 * * * *" for once a minute).
func (r *Runner) Start(ctx context.Context, spec string) error {
	_, err := r.cron.AddFunc(spec, func() { r.tick(ctx) })
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight tick to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) tick(ctx context.Context) {
	stats := r.pool.Stats()
	r.logger.Info("maintenance: pool stats",
		"state", stats.State.String(),
		"pages_processed", stats.PagesProcessed,
		"success_rate", stats.SuccessRate(),
		"utilization", stats.Utilization(),
	)

	if r.filter == nil {
		return
	}

	inserted, err := r.filter.InsertedCount(ctx)
	if err != nil {
		r.logger.Warn("maintenance: filter saturation check failed", "error", err)
		return
	}
	if inserted > r.filter.Capacity() {
		r.logger.Warn(filter.ErrSaturated.Error(), "inserted", inserted, "capacity", r.filter.Capacity())
	}
}

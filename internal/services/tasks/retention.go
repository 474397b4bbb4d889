package tasks

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Retention periodically prunes terminal tasks from the registry so the
// in-memory map does not grow without bound. Completed results live on in
// the artifact store. Each run also invokes the optional storeGC hook so
// the artifact store can reclaim space on the same schedule.
type Retention struct {
	registry *Registry
	cron     *cron.Cron
	maxAge   time.Duration
	storeGC  func()
	logger   arbor.ILogger
}

// NewRetention creates a retention job on the given cron schedule.
// storeGC may be nil.
func NewRetention(registry *Registry, schedule string, maxAge time.Duration, storeGC func(), logger arbor.ILogger) (*Retention, error) {
	r := &Retention{
		registry: registry,
		cron:     cron.New(),
		maxAge:   maxAge,
		storeGC:  storeGC,
		logger:   logger,
	}

	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins the retention schedule
func (r *Retention) Start() {
	r.cron.Start()
	r.logger.Info().
		Dur("max_age", r.maxAge).
		Msg("Task retention started")
}

// Stop halts the schedule and waits for a running prune to finish
func (r *Retention) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("Task retention stopped")
}

func (r *Retention) run() {
	r.registry.Prune(r.maxAge)
	if r.storeGC != nil {
		r.storeGC()
	}
}

package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron"

	"telegram-translator/internal/logging"
)

// DefaultPruneSchedule runs the retention sweep once a day.
const DefaultPruneSchedule = "@every 24h"

const pruneTimeout = 5 * time.Minute

// Pruner removes expired dedup records.
type Pruner interface {
	Prune(ctx context.Context, retentionDays int) int64
}

// Cleaner runs the retention sweep on a cron schedule.
type Cleaner struct {
	cron          *cron.Cron
	pruner        Pruner
	retentionDays int
	metrics       *Metrics
	logger        logging.Logger
}

// NewCleaner schedules pruner to run on schedule. It does not start the scheduler.
func NewCleaner(pruner Pruner, schedule string, retentionDays int, metrics *Metrics, logger logging.Logger) (*Cleaner, error) {
	if pruner == nil {
		return nil, fmt.Errorf("pruner cannot be nil")
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	c := &Cleaner{
		cron:          cron.New(),
		pruner:        pruner,
		retentionDays: retentionDays,
		metrics:       metrics,
		logger:        logger,
	}
	if err := c.cron.AddFunc(schedule, c.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return c, nil
}

// RunOnce performs one sweep. It is the cron entry point.
func (c *Cleaner) RunOnce() {
	c.Prune(context.Background())
}

// Prune performs one sweep bounded by a timeout and returns how many records were removed.
func (c *Cleaner) Prune(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	c.logger.Info("Running cleanup task...")
	removed := c.pruner.Prune(ctx, c.retentionDays)
	c.metrics.PrunedRecords.Add(float64(removed))
	return removed
}

// Start starts the scheduler.
func (c *Cleaner) Start() {
	c.cron.Start()
}

// Stop stops the scheduler; a sweep already running is not interrupted.
func (c *Cleaner) Stop() {
	c.cron.Stop()
}

package jobs

import (
	"context"
	"time"

	"github.com/tagomatech/ETL/pkg/logger"
)

// RunPruner is the retention side of store.Repository
type RunPruner interface {
	PruneRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneRunsJob deletes stored builds older than the retention window
type PruneRunsJob struct {
	pruner    RunPruner
	retention time.Duration
	schedule  string
	logger    *logger.Logger
	now       func() time.Time
}

// NewPruneRunsJob creates a retention job
func NewPruneRunsJob(pruner RunPruner, retention time.Duration, schedule string, log *logger.Logger) *PruneRunsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &PruneRunsJob{
		pruner:    pruner,
		retention: retention,
		schedule:  schedule,
		logger:    log,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *PruneRunsJob) Name() string {
	return "prune_build_runs"
}

// Schedule returns the cron schedule
func (j *PruneRunsJob) Schedule() string {
	return j.schedule
}

// Run executes the pruning
func (j *PruneRunsJob) Run(ctx context.Context) error {
	count, err := j.pruner.PruneRuns(ctx, j.now().Add(-j.retention))
	if err != nil {
		return err
	}
	if count > 0 {
		j.logger.WithField("removed", count).Info("Build run pruning completed")
	}
	return nil
}

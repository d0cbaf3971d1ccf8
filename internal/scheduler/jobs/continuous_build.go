package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/nearby"
	"github.com/tagomatech/ETL/pkg/logger"
)

// RootBuilder is the part of nearby.Builder the job drives
type RootBuilder interface {
	BuildFromRoot(ctx context.Context, rr nearby.RootRequest) (*nearby.Result, error)
}

// ContinuousBuildJob rebuilds every configured line of one root over a trailing window
// ⭐ SSOT: 연속 시계열 재생성 스케줄은 이 Job에서만
type ContinuousBuildJob struct {
	target  Target
	builder RootBuilder
	sinks   []Sink
	logger  *logger.Logger
	now     func() time.Time
}

// NewContinuousBuildJob creates a build job for target
func NewContinuousBuildJob(target Target, builder RootBuilder, log *logger.Logger, sinks ...Sink) *ContinuousBuildJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ContinuousBuildJob{
		target:  target,
		builder: builder,
		sinks:   sinks,
		logger:  log.ForBuild(target.Root, 0),
		now:     time.Now,
	}
}

// Name returns the job name
func (j *ContinuousBuildJob) Name() string {
	return "continuous_build_" + strings.ToLower(j.target.Root)
}

// Schedule returns the cron schedule of the target
func (j *ContinuousBuildJob) Schedule() string {
	return j.target.Schedule
}

// Run builds each line, ending today, and hands the results to every sink
// A failing line aborts the run so the scheduler retries it whole.
func (j *ContinuousBuildJob) Run(ctx context.Context) error {
	end := calendar.Day(j.now())
	start := end.AddDate(0, 0, -j.target.LookbackDays)

	j.logger.WithFields(map[string]interface{}{
		"start": start.Format("2006-01-02"),
		"end":   end.Format("2006-01-02"),
		"lines": j.target.Lines,
	}).Info("Starting scheduled continuous build")

	for _, line := range j.target.Lines {
		res, err := j.builder.BuildFromRoot(ctx, nearby.RootRequest{
			Root:         j.target.Root,
			Line:         line,
			Start:        start,
			End:          end,
			Months:       j.target.Months,
			WithSegments: true,
		})
		if err != nil {
			return fmt.Errorf("build %s line %d: %w", j.target.Root, line, err)
		}

		for _, sink := range j.sinks {
			if err := sink.Save(ctx, j.target.Root, start, end, res); err != nil {
				return err
			}
		}

		j.logger.WithFields(map[string]interface{}{
			"line":        line,
			"rows":        len(res.Bars),
			"segments":    len(res.Segments),
			"diagnostics": len(res.Diagnostics),
		}).Info("Continuous series rebuilt")
	}
	return nil
}

package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/pkg/logger"
)

// UniverseJob refreshes the listed contracts of each root, warming the universe cache
type UniverseJob struct {
	universe contracts.SymbolUniverse
	roots    []string
	schedule string
	logger   *logger.Logger
}

// NewUniverseJob creates a universe refresh job
func NewUniverseJob(universe contracts.SymbolUniverse, roots []string, schedule string, log *logger.Logger) *UniverseJob {
	if log == nil {
		log = logger.Nop()
	}
	return &UniverseJob{universe: universe, roots: roots, schedule: schedule, logger: log}
}

// Name returns the job name
func (j *UniverseJob) Name() string {
	return "universe_refresh"
}

// Schedule returns the cron schedule
func (j *UniverseJob) Schedule() string {
	return j.schedule
}

// Run lists every root; one failing root does not stop the others
func (j *UniverseJob) Run(ctx context.Context) error {
	var failed []string
	for _, root := range j.roots {
		symbols, err := j.universe.Contracts(ctx, root)
		if err != nil {
			j.logger.WithError(err).WithField("root", root).Warn("Universe refresh failed")
			failed = append(failed, root)
			continue
		}
		j.logger.WithFields(map[string]interface{}{
			"root":      root,
			"contracts": len(symbols),
		}).Info("Universe refreshed")
	}

	if len(failed) > 0 {
		return fmt.Errorf("universe refresh failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

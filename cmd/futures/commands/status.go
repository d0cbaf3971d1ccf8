package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagomatech/ETL/pkg/database"
)

// statusCmd checks the optional collaborators
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check database, Redis and the latest stored builds",
	Long: `Check the optional collaborators.

Applies the futures schema when a database is configured, pings Redis
when REDIS_ENABLED is on and, with --root, shows the newest stored run.`,
	Example: `  go run ./cmd/futures status
  go run ./cmd/futures status --root KC --line 1`,
	RunE: runStatus,
}

var (
	statusRoot string
	statusLine int
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusRoot, "root", "", "show the latest run of this root")
	statusCmd.Flags().IntVar(&statusLine, "line", 1, "line of --root")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	printHeader(out, "Futures status", "Env", a.cfg.Env, "Log", a.cfg.LogLevel)

	db, err := a.database(ctx)
	switch {
	case errors.Is(err, database.ErrNotConfigured):
		printWarning(out, "Database: not configured")
	case err != nil:
		return err
	default:
		health, err := db.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("database health check: %w", err)
		}
		printSuccess(out, "Database: ok (%s, %d/%d conns)",
			health.ResponseTime.Round(time.Millisecond), health.Stats.AcquiredConns, health.Stats.MaxConns)
	}

	rdb, err := a.redis(ctx)
	switch {
	case err != nil:
		printWarning(out, "Redis: %v", err)
	case !rdb.Enabled():
		printWarning(out, "Redis: disabled")
	default:
		if err := rdb.Ping(ctx); err != nil {
			printWarning(out, "Redis: %v", err)
		} else {
			printSuccess(out, "Redis: ok")
		}
	}

	if statusRoot == "" || db == nil {
		return nil
	}
	repo, err := a.repository(ctx)
	if err != nil {
		return err
	}
	run, err := repo.LatestRun(ctx, statusRoot, statusLine)
	if err != nil {
		return err
	}
	printHeader(out, "Latest run",
		"Run", run.ID.String(),
		"Created", run.CreatedAt.Format("2006-01-02 15:04:05"),
		"Window", formatDate(run.Start)+" ~ "+formatDate(run.End),
		"Rows", fmt.Sprint(len(run.Bars)),
		"Skipped", fmt.Sprint(len(run.Diagnostics)))
	return nil
}

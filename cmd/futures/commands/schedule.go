package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagomatech/ETL/internal/api"
	"github.com/tagomatech/ETL/internal/scheduler"
	"github.com/tagomatech/ETL/internal/scheduler/jobs"
)

var scheduleFile string

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Scheduled continuous-series rebuilds",
	Long: `Run the rebuild scheduler or inspect its jobs.

Jobs come from a YAML schedule file (one per target root), plus a daily
universe refresh and, when a database is configured, run pruning.

Subcommands:
  start   - start the scheduler daemon
  list    - list jobs and their next activation
  run     - run one job now and wait for it`,
	Example: `  go run ./cmd/futures schedule start --file schedule.yaml
  go run ./cmd/futures schedule list --file schedule.yaml
  go run ./cmd/futures schedule run continuous_build_kc --file schedule.yaml`,
}

var (
	scheduleStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler (Ctrl+C to stop)",
		RunE:  runScheduler,
	}

	scheduleListCmd = &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE:  listJobs,
	}

	scheduleRunCmd = &cobra.Command{
		Use:   "run JOB",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobNow,
	}
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleStartCmd, scheduleListCmd, scheduleRunCmd)
	scheduleCmd.PersistentFlags().StringVarP(&scheduleFile, "file", "f", "schedule.yaml", "schedule file")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, sched, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	printHeader(out, "Futures scheduler", "File", scheduleFile)
	for _, name := range sched.GetAllJobs() {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if a.cfg.MetricsEnabled {
		deps := api.Deps{Jobs: sched, Metrics: a.recorder.Handler()}
		if a.db != nil {
			deps.DB = a.db
		}
		srv := api.NewServer(":"+a.cfg.MetricsPort, api.NewRouter(deps, a.log), a.log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				a.log.WithError(err).Error("Ops server stopped")
			}
		}()
	}

	sched.Run(ctx)
	printSuccess(out, "Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	// Next activations are only computed by a running cron.
	sched.Start()
	defer sched.Stop()

	out := cmd.OutOrStdout()
	stats := sched.GetJobStats()
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		fmt.Fprintf(out, "📊 %s\n", name)
		fmt.Fprintf(out, "   Schedule: %s\n", st.Schedule)
		if !st.NextRun.IsZero() {
			fmt.Fprintf(out, "   Next Run: %s\n", st.NextRun.Format("2006-01-02 15:04:05 MST"))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runJobNow(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, sched, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	res, err := sched.RunJob(ctx, args[0])
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("job %s failed after %d attempts: %s", res.JobName, res.Attempts, res.Error)
	}
	printSuccess(cmd.OutOrStdout(), "Job %s completed in %.2fs", res.JobName, res.Duration.Seconds())
	return nil
}

// initScheduler wires the jobs of the schedule file
func initScheduler(ctx context.Context) (*app, *scheduler.Scheduler, error) {
	file, err := jobs.LoadFile(scheduleFile)
	if err != nil {
		return nil, nil, err
	}
	loc, err := file.Location()
	if err != nil {
		return nil, nil, err
	}

	a, err := newApp()
	if err != nil {
		return nil, nil, err
	}

	fail := func(err error) (*app, *scheduler.Scheduler, error) {
		a.Close()
		return nil, nil, err
	}

	repo, err := a.optionalRepository(ctx)
	if err != nil {
		return fail(err)
	}
	fetcher, err := a.fetcher(ctx, sourceBarchart, repo != nil)
	if err != nil {
		return fail(err)
	}
	builder := a.builder(fetcher, -1, false)

	sinks := []jobs.Sink{jobs.NewFileSink(a.cfg.Futures.ExportDir)}
	if repo != nil {
		sinks = append(sinks, jobs.NewStoreSink(repo))
	}

	sched := scheduler.New(a.log, scheduler.WithLocation(loc))
	for _, target := range file.Targets {
		if err := sched.AddJob(jobs.NewContinuousBuildJob(target, builder, a.log, sinks...)); err != nil {
			return fail(err)
		}
	}

	universe, err := a.universe(ctx)
	if err != nil {
		return fail(err)
	}
	if err := sched.AddJob(jobs.NewUniverseJob(universe, file.Roots(), file.UniverseSchedule, a.log)); err != nil {
		return fail(err)
	}

	if repo != nil && file.PruneAfterDays > 0 {
		retention := time.Duration(file.PruneAfterDays) * 24 * time.Hour
		if err := sched.AddJob(jobs.NewPruneRunsJob(repo, retention, file.PruneSchedule, a.log)); err != nil {
			return fail(err)
		}
	}
	return a, sched, nil
}

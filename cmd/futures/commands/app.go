package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/internal/external/barchart"
	"github.com/tagomatech/ETL/internal/fetchcache"
	"github.com/tagomatech/ETL/internal/nearby"
	"github.com/tagomatech/ETL/internal/store"
	"github.com/tagomatech/ETL/pkg/config"
	"github.com/tagomatech/ETL/pkg/database"
	"github.com/tagomatech/ETL/pkg/httputil"
	"github.com/tagomatech/ETL/pkg/logger"
	"github.com/tagomatech/ETL/pkg/metrics"
	"github.com/tagomatech/ETL/pkg/redis"
)

// Bar sources selectable with --source
const (
	sourceBarchart = "barchart"
	sourceDB       = "db"
)

// app holds the dependencies shared by commands; collaborators are opened lazily
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	cal      *calendar.Calendar
	recorder *metrics.Recorder

	db      *database.DB
	rdb     *redis.Client
	client  *barchart.Client
	closers []func()
}

// newApp loads config, logger and calendar
// ⭐ SSOT: CLI 의존성 조립은 여기서만
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	path := cyclesFile
	if path == "" {
		path = cfg.Futures.CyclesFile
	}
	var cal *calendar.Calendar
	if path != "" {
		if cal, err = calendar.LoadCycles(path, calendar.WithMaxSteps(cfg.Futures.MaxSteps)); err != nil {
			return nil, err
		}
	} else {
		cal = calendar.NewDefault(calendar.WithMaxSteps(cfg.Futures.MaxSteps))
	}

	return &app{cfg: cfg, log: log, cal: cal, recorder: metrics.NewRecorder()}, nil
}

// Close releases every opened collaborator, newest first
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) database(ctx context.Context) (*database.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := database.New(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx, store.Schema); err != nil {
		db.Close()
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	return db, nil
}

func (a *app) repository(ctx context.Context) (*store.Repository, error) {
	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewRepository(db.Pool), nil
}

// redis returns a client that is a no-op when REDIS_ENABLED is off
func (a *app) redis(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return rdb, nil
}

func (a *app) barchart(ctx context.Context) (*barchart.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	rdb, err := a.redis(ctx)
	if err != nil {
		return nil, err
	}

	var opts []httputil.Option
	if rdb.Enabled() {
		// Shared window across every process that talks to the site.
		limiter := redis.NewSharedLimiter(rdb, "futures")
		opts = append(opts, httputil.WithWaiter(limiter.Waiter(redis.BarchartQuota(a.cfg.Barchart))))
	}
	client, err := barchart.NewClient(a.cfg.Barchart, a.log, opts...)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

// fetcher assembles the bar source chain: upstream, then cache, then archive
func (a *app) fetcher(ctx context.Context, source string, archive bool) (contracts.BarFetcher, error) {
	switch source {
	case sourceDB:
		repo, err := a.repository(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewFetcher(repo), nil

	case sourceBarchart:
		client, err := a.barchart(ctx)
		if err != nil {
			return nil, err
		}
		var f contracts.BarFetcher = barchart.NewFetcher(client, a.recorder)

		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		if rdb.Enabled() {
			f = fetchcache.New(f, redis.NewCache(rdb, "futures"), barchart.SourceName,
				fetchcache.WithTTL(a.cfg.Futures.CacheTTL),
				fetchcache.WithRecorder(a.recorder),
				fetchcache.WithLogger(a.log))
		}

		if archive {
			repo, err := a.repository(ctx)
			if err != nil {
				return nil, err
			}
			f = store.NewArchive(f, repo, barchart.SourceName, a.log)
		}
		return f, nil

	default:
		return nil, fmt.Errorf("unknown source %q (valid: %s, %s)", source, sourceBarchart, sourceDB)
	}
}

func (a *app) universe(ctx context.Context) (contracts.SymbolUniverse, error) {
	client, err := a.barchart(ctx)
	if err != nil {
		return nil, err
	}
	rdb, err := a.redis(ctx)
	if err != nil {
		return nil, err
	}
	if !rdb.Enabled() {
		return client, nil
	}
	return fetchcache.NewUniverse(client, redis.NewCache(rdb, "futures"), barchart.SourceName,
		fetchcache.WithTTL(redis.TTLDaily), fetchcache.WithLogger(a.log)), nil
}

// builder applies the configured ranking defaults; minVolume < 0 keeps the config value
func (a *app) builder(fetcher contracts.BarFetcher, minVolume int64, keepIncomplete bool) *nearby.Builder {
	if minVolume < 0 {
		minVolume = a.cfg.Futures.MinVolume
	}
	opts := []nearby.Option{
		nearby.WithRecorder(a.recorder),
		nearby.WithDropIncompleteDays(a.cfg.Futures.DropIncompleteDays && !keepIncomplete),
	}
	if minVolume >= 0 {
		opts = append(opts, nearby.WithMinVolume(minVolume))
	}
	return nearby.NewBuilder(a.cal, fetcher, a.log, opts...)
}

// optionalRepository returns nil without error when no database is configured
func (a *app) optionalRepository(ctx context.Context) (*store.Repository, error) {
	repo, err := a.repository(ctx)
	if errors.Is(err, database.ErrNotConfigured) {
		return nil, nil
	}
	return repo, err
}

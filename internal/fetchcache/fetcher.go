// Package fetchcache puts a read-through cache in front of a bar fetcher.
package fetchcache

import (
	"context"
	"time"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/pkg/logger"
	"github.com/tagomatech/ETL/pkg/metrics"
	"github.com/tagomatech/ETL/pkg/redis"
)

// Store is the subset of *redis.Cache the decorators need
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

var _ Store = (*redis.Cache)(nil)

// Option configures the decorators
type Option func(*options)

type options struct {
	ttl      time.Duration
	recorder *metrics.Recorder
	logger   *logger.Logger
	now      func() time.Time
}

// WithTTL sets the lifetime of entries for contracts still trading
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithRecorder counts cache hits
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{ttl: redis.TTLDaily, logger: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.Module("fetchcache")
	return o
}

// Fetcher caches the rows of another BarFetcher
// ⭐ SSOT: 원시 시세 캐시는 이 데코레이터에서만
// Cache failures are logged and bypassed; only the wrapped fetcher can fail a fetch.
type Fetcher struct {
	next   contracts.BarFetcher
	store  Store
	source string
	options
}

var _ contracts.BarFetcher = (*Fetcher)(nil)

// New wraps next; source namespaces the keys (e.g. "barchart")
func New(next contracts.BarFetcher, store Store, source string, opts ...Option) *Fetcher {
	return &Fetcher{
		next:    next,
		store:   store,
		source:  source,
		options: buildOptions(opts),
	}
}

// FetchOne serves from cache or delegates and stores non-empty results
func (f *Fetcher) FetchOne(ctx context.Context, symbol string, start, end time.Time) ([]contracts.RawRow, error) {
	key := redis.ContractBarsKey(f.source, symbol, start, end)
	log := f.logger.WithField("key", key)

	var rows []contracts.RawRow
	began := time.Now()
	found, err := f.store.Get(ctx, key, &rows)
	if err != nil {
		log.WithError(err).Warn("Cache read failed, fetching upstream")
	}
	if found {
		f.recorder.ObserveFetch(f.source, metrics.OutcomeHit, time.Since(began))
		log.Debug("Cache hit")
		return rows, nil
	}

	rows, err = f.next.FetchOne(ctx, symbol, start, end)
	if err != nil || len(rows) == 0 {
		return rows, err
	}

	if err := f.store.Set(ctx, key, rows, f.ttlFor(symbol, end)); err != nil {
		log.WithError(err).Warn("Cache write failed")
	}
	return rows, nil
}

// ttlFor keeps settled history longer: an expired contract never changes,
// nor does a window that closed before today
func (f *Fetcher) ttlFor(symbol string, end time.Time) time.Duration {
	today := calendar.Day(f.now())
	if !end.IsZero() && calendar.Day(end).Before(today) {
		return redis.TTLExpired
	}
	sym, err := calendar.ParseSymbol(symbol)
	if err != nil {
		return f.ttl
	}
	afterExpiry := time.Date(sym.Year, sym.Month+1, 1, 0, 0, 0, 0, time.UTC)
	if !today.Before(afterExpiry) {
		return redis.TTLExpired
	}
	return f.ttl
}

// Universe caches another SymbolUniverse
type Universe struct {
	next   contracts.SymbolUniverse
	store  Store
	source string
	options
}

var _ contracts.SymbolUniverse = (*Universe)(nil)

// NewUniverse wraps next; listings are kept for the configured TTL
func NewUniverse(next contracts.SymbolUniverse, store Store, source string, opts ...Option) *Universe {
	return &Universe{next: next, store: store, source: source, options: buildOptions(opts)}
}

// Contracts serves the listing from cache or delegates
func (u *Universe) Contracts(ctx context.Context, root string) ([]string, error) {
	key := redis.UniverseKey(u.source, root)

	var symbols []string
	found, err := u.store.Get(ctx, key, &symbols)
	if err != nil {
		u.logger.WithError(err).Warn("Cache read failed, listing upstream")
	}
	if found {
		return symbols, nil
	}

	symbols, err = u.next.Contracts(ctx, root)
	if err != nil || len(symbols) == 0 {
		return symbols, err
	}
	if err := u.store.Set(ctx, key, symbols, u.ttl); err != nil {
		u.logger.WithError(err).Warn("Cache write failed")
	}
	return symbols, nil
}

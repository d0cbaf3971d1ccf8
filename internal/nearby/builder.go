// Package nearby merges per-contract histories and selects the nearby-k series.
//
// On every date the contracts trading that day are ranked by expiry, rank 1
// being the nearest. A request for line k keeps the rank-k bar of each date
// and never falls back to a lower rank on dates with fewer than k contracts.
package nearby

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/internal/normalize"
	"github.com/tagomatech/ETL/internal/segment"
	"github.com/tagomatech/ETL/pkg/logger"
	"github.com/tagomatech/ETL/pkg/metrics"
)

// Diagnostic records a contract dropped from the working set
type Diagnostic struct {
	Symbol string
	Err    error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %v", d.Symbol, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Result is the selected series of one line
// An empty Bars slice means no data in range; it is never reported as an error.
type Result struct {
	Line           int
	Bars           []contracts.ContinuousBar
	Segments       []contracts.Segment
	Diagnostics    []Diagnostic
	IncompleteDays []time.Time
}

// Option configures a Builder
type Option func(*Builder)

// WithMinVolume drops bars whose volume is present and at or below v
func WithMinVolume(v int64) Option {
	return func(b *Builder) {
		b.ranking.minVolume = &v
	}
}

// WithDropIncompleteDays toggles the incomplete-day policy (default on)
// When on, dates with fewer than line ranked contracts are listed in Result.IncompleteDays.
func WithDropIncompleteDays(drop bool) Option {
	return func(b *Builder) {
		b.ranking.dropIncompleteDays = drop
	}
}

// WithRecorder attaches build metrics
func WithRecorder(r *metrics.Recorder) Option {
	return func(b *Builder) {
		b.recorder = r
	}
}

// Builder holds read-only configuration and may be shared across goroutines
type Builder struct {
	cal      *calendar.Calendar
	fetcher  contracts.BarFetcher
	logger   *logger.Logger
	recorder *metrics.Recorder
	validate *validator.Validate
	ranking  rankingOptions
}

// NewBuilder creates a Builder; fetcher may be nil when only BuildFromBars is used
func NewBuilder(cal *calendar.Calendar, fetcher contracts.BarFetcher, log *logger.Logger, opts ...Option) *Builder {
	if cal == nil {
		cal = calendar.NewDefault()
	}
	if log == nil {
		log = logger.Nop()
	}
	b := &Builder{
		cal:      cal,
		fetcher:  fetcher,
		logger:   log.Module("nearby"),
		validate: newValidator(),
		ranking:  rankingOptions{dropIncompleteDays: true},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildFromBars ranks already-normalized bars keyed by contract symbol
func (b *Builder) BuildFromBars(data map[string][]contracts.Bar, req Request) (*Result, error) {
	if err := check(b.validate, req); err != nil {
		return nil, err
	}
	start := time.Now()

	keys := make([]string, 0, len(data))
	parsed := make(map[string]contracts.ContractSymbol, len(data))
	for k := range data {
		sym, err := calendar.ParseSymbol(k)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
		parsed[k] = sym
	}
	// Map order is random; expiry then spelling gives a deterministic input order.
	sort.Slice(keys, func(i, j int) bool {
		ki, kj := parsed[keys[i]].ExpiryKey(), parsed[keys[j]].ExpiryKey()
		if ki != kj {
			return ki < kj
		}
		return keys[i] < keys[j]
	})

	var input []contractBars
	index := make(map[contracts.ContractSymbol]int)
	for _, k := range keys {
		sym := parsed[k]
		if i, ok := index[sym]; ok {
			// "kch25" and "KCH25" are one contract; later rows win on dedupe.
			input[i].bars = append(input[i].bars, data[k]...)
			continue
		}
		index[sym] = len(input)
		input = append(input, contractBars{symbol: sym, bars: data[k]})
	}

	syms := make([]contracts.ContractSymbol, len(input))
	for i, cb := range input {
		syms[i] = cb.symbol
	}
	res := b.rank(input, req, nil)
	b.observe(rootOf(syms), req.Line, len(res.Bars), time.Since(start))
	return res, nil
}

// Build fetches each symbol, sequentially in ascending expiry order, then ranks
// A failed or empty fetch skips that symbol with a diagnostic. Invalid symbols
// and payloads without a date column fail the whole build.
func (b *Builder) Build(ctx context.Context, symbols []string, req Request) (*Result, error) {
	if b.fetcher == nil {
		return nil, contracts.ErrMissingFetcher
	}
	if err := check(b.validate, req); err != nil {
		return nil, err
	}
	start := time.Now()

	syms, err := orderSymbols(symbols)
	if err != nil {
		return nil, err
	}

	log := b.logger.ForBuild(rootOf(syms), req.Line)
	log.WithField("contracts", len(syms)).Debug("Fetching contracts")

	var input []contractBars
	var diags []Diagnostic
	for _, sym := range syms {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build cancelled at %s: %w", sym, err)
		}

		bars, diag, err := b.fetchOne(ctx, sym, req)
		if err != nil {
			return nil, err
		}
		if diag != nil {
			log.WithError(diag.Err).ForContract(diag.Symbol).Warn("Skipping contract")
			diags = append(diags, *diag)
			continue
		}
		input = append(input, contractBars{symbol: sym, bars: bars})
	}

	res := b.rank(input, req, diags)
	if len(input) == 0 {
		log.Warn("No contract returned usable data")
	}

	elapsed := time.Since(start)
	log.WithElapsed(elapsed).WithFields(map[string]interface{}{
		"rows":    len(res.Bars),
		"skipped": len(diags),
	}).Info("Nearby series built")

	b.observe(rootOf(syms), req.Line, len(res.Bars), elapsed)
	return res, nil
}

// BuildFromRoot plans the contract list for a root and window, then builds it
func (b *Builder) BuildFromRoot(ctx context.Context, rr RootRequest) (*Result, error) {
	if b.fetcher == nil {
		return nil, contracts.ErrMissingFetcher
	}

	plan, err := b.Plan(rr)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, len(plan))
	for i, s := range plan {
		symbols[i] = s.String()
	}
	return b.Build(ctx, symbols, rr.request())
}

// Plan returns the contracts BuildFromRoot would fetch
// The window's ladder is padded forward until the front contract at End is
// reached, plus line-1 more, so the requested rank exists on the last date.
func (b *Builder) Plan(rr RootRequest) ([]contracts.ContractSymbol, error) {
	if err := check(b.validate, rr); err != nil {
		return nil, err
	}

	root, err := calendar.NormalizeRoot(rr.Root)
	if err != nil {
		return nil, err
	}

	cycle := b.cal.CycleFor(root)
	if len(rr.Months) > 0 {
		if cycle, err = calendar.ParseCycleLetters(rr.Months...); err != nil {
			return nil, err
		}
	}

	end := calendar.Day(rr.End)
	ladder := b.cal.GenerateLadder(root, cycle, rr.Start, end)

	front, err := b.cal.FrontAtDate(root, cycle, end)
	if err != nil {
		return nil, err
	}
	if rr.CurrentFront != "" {
		front, err = calendar.ParseSymbol(rr.CurrentFront)
		if err != nil {
			return nil, err
		}
		if front.Root != root {
			return nil, fmt.Errorf("%w: current front %s is not a %s contract", contracts.ErrRootMismatch, front, root)
		}
	}

	if len(ladder) == 0 {
		ladder = []contracts.ContractSymbol{front}
	}

	last := ladder[len(ladder)-1]
	steps, err := b.cal.StepsForward(last, front, cycle)
	if err != nil {
		return nil, err
	}
	pads := steps + rr.Line - 1

	plan := append([]contracts.ContractSymbol(nil), ladder...)
	seen := make(map[contracts.ContractSymbol]bool, len(plan)+pads)
	for _, s := range plan {
		seen[s] = true
	}
	cur := last
	for i := 0; i < pads; i++ {
		if cur, err = b.cal.Step(cur, 1, cycle); err != nil {
			return nil, err
		}
		if !seen[cur] {
			seen[cur] = true
			plan = append(plan, cur)
		}
	}

	b.logger.ForBuild(root, rr.Line).WithFields(map[string]interface{}{
		"cycle":  cycle.Letters(),
		"front":  front.String(),
		"ladder": len(ladder),
		"pads":   pads,
	}).Debug("Planned contract list")

	return plan, nil
}

// fetchOne pulls and normalizes one contract; recoverable failures come back as a diagnostic
func (b *Builder) fetchOne(ctx context.Context, sym contracts.ContractSymbol, req Request) ([]contracts.Bar, *Diagnostic, error) {
	rows, err := b.fetcher.FetchOne(ctx, sym.String(), req.Start, req.End)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, nil, fmt.Errorf("fetch %s: %w", sym, err)
		}
		return nil, &Diagnostic{Symbol: sym.String(), Err: fmt.Errorf("%w: %v", contracts.ErrFetchFailed, err)}, nil
	}
	if len(rows) == 0 {
		return nil, &Diagnostic{Symbol: sym.String(), Err: fmt.Errorf("%w: empty payload", contracts.ErrFetchFailed)}, nil
	}

	bars, err := normalize.Normalize(rows, sym)
	if err != nil {
		return nil, nil, err
	}
	if len(bars) == 0 {
		return nil, &Diagnostic{Symbol: sym.String(), Err: fmt.Errorf("%w: no parseable dates in %d rows", contracts.ErrFetchFailed, len(rows))}, nil
	}

	b.logger.ForContract(sym.String()).WithField("rows", len(bars)).Debug("Contract fetched")
	return bars, nil, nil
}

func (b *Builder) rank(input []contractBars, req Request, diags []Diagnostic) *Result {
	if !req.Start.IsZero() {
		req.Start = calendar.Day(req.Start)
	}
	if !req.End.IsZero() {
		req.End = calendar.Day(req.End)
	}

	sel := selectLine(input, req, b.ranking)
	res := &Result{
		Line:           req.Line,
		Bars:           sel.bars,
		Diagnostics:    diags,
		IncompleteDays: sel.incomplete,
	}
	if req.WithSegments {
		res.Segments = segment.Extract(sel.bars)
	}
	return res
}

func (b *Builder) observe(root string, line, rows int, d time.Duration) {
	b.recorder.ObserveBuild(root, strconv.Itoa(line), rows, d)
}

// orderSymbols parses, de-duplicates and sorts symbols by expiry, keeping input order on ties
func orderSymbols(symbols []string) ([]contracts.ContractSymbol, error) {
	seen := make(map[contracts.ContractSymbol]bool, len(symbols))
	out := make([]contracts.ContractSymbol, 0, len(symbols))
	for _, s := range symbols {
		sym, err := calendar.ParseSymbol(s)
		if err != nil {
			return nil, err
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiryKey() < out[j].ExpiryKey() })
	return out, nil
}

func rootOf(syms []contracts.ContractSymbol) string {
	if len(syms) == 0 {
		return ""
	}
	root := syms[0].Root
	for _, sym := range syms[1:] {
		if sym.Root != root {
			return "mixed"
		}
	}
	return root
}

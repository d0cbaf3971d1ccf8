package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tagomatech/ETL/internal/contracts"
)

// ErrRunNotFound is returned when no build run matches
var ErrRunNotFound = errors.New("build run not found")

// Run is one persisted continuous-series build
type Run struct {
	ID          uuid.UUID
	Root        string
	Line        int
	Start       time.Time
	End         time.Time
	Bars        []contracts.ContinuousBar
	Segments    []contracts.Segment
	Diagnostics []string
	CreatedAt   time.Time
}

// Repository reads and writes the futures schema
// ⭐ SSOT: futures 데이터 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveContractBars upserts canonical bars of any number of contracts
func (r *Repository) SaveContractBars(ctx context.Context, source string, bars []contracts.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO futures.contract_bars (
			symbol, root, trade_date,
			open, high, low, close, settlement, last,
			volume, open_interest, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			settlement = EXCLUDED.settlement,
			last = EXCLUDED.last,
			volume = EXCLUDED.volume,
			open_interest = EXCLUDED.open_interest,
			source = EXCLUDED.source,
			updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query,
			b.Symbol.String(), b.Symbol.Root, b.Date,
			b.Open, b.High, b.Low, b.Close, b.Settlement, b.Last,
			b.Volume, b.OpenInterest, source,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range bars {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("failed to upsert %s %s: %w",
				bars[i].Symbol, bars[i].Date.Format("2006-01-02"), err)
		}
	}
	return len(bars), nil
}

// LoadContractBars returns the stored bars of one contract, oldest first
// Zero bounds leave the range open on that side.
func (r *Repository) LoadContractBars(ctx context.Context, symbol contracts.ContractSymbol, start, end time.Time) ([]contracts.Bar, error) {
	query := `
		SELECT trade_date, open, high, low, close, settlement, last, volume, open_interest
		FROM futures.contract_bars
		WHERE symbol = $1
		  AND ($2::date IS NULL OR trade_date >= $2)
		  AND ($3::date IS NULL OR trade_date <= $3)
		ORDER BY trade_date
	`

	rows, err := r.pool.Query(ctx, query, symbol.String(), nullDate(start), nullDate(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query contract bars: %w", err)
	}
	defer rows.Close()

	bars := []contracts.Bar{}
	for rows.Next() {
		b := contracts.Bar{Symbol: symbol}
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Settlement, &b.Last, &b.Volume, &b.OpenInterest); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return bars, nil
}

// SaveRun stores a build with its rows and segments in one transaction
// A zero run ID is replaced with a fresh UUID, which is returned.
func (r *Repository) SaveRun(ctx context.Context, run *Run) (uuid.UUID, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	diagnostics := run.Diagnostics
	if diagnostics == nil {
		diagnostics = []string{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO futures.build_runs (run_id, root, line, start_date, end_date, n_rows, diagnostics)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.Root, run.Line, nullDate(run.Start), nullDate(run.End), len(run.Bars), diagnostics)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert build run: %w", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"futures", "continuous_bars"},
		[]string{"run_id", "trade_date", "line", "source_symbol", "symbol",
			"open", "high", "low", "close", "settlement", "last", "volume", "open_interest"},
		pgx.CopyFromSlice(len(run.Bars), func(i int) ([]any, error) {
			b := run.Bars[i]
			return []any{run.ID, b.Date, b.Line, b.SourceSymbol, b.Symbol,
				b.Open, b.High, b.Low, b.Close, b.Settlement, b.Last, b.Volume, b.OpenInterest}, nil
		}),
	); err != nil {
		return uuid.Nil, fmt.Errorf("failed to copy continuous bars: %w", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"futures", "segments"},
		[]string{"run_id", "segment_start", "segment_end", "line", "source_symbol", "n_rows"},
		pgx.CopyFromSlice(len(run.Segments), func(i int) ([]any, error) {
			s := run.Segments[i]
			return []any{run.ID, s.Start, s.End, s.Line, s.SourceSymbol, s.Rows}, nil
		}),
	); err != nil {
		return uuid.Nil, fmt.Errorf("failed to copy segments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return run.ID, nil
}

// LatestRun loads the newest build of root and line, rows and segments included
func (r *Repository) LatestRun(ctx context.Context, root string, line int) (*Run, error) {
	run := &Run{Root: root, Line: line}
	var start, end *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT run_id, start_date, end_date, diagnostics, created_at
		FROM futures.build_runs
		WHERE root = $1 AND line = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, root, line).Scan(&run.ID, &start, &end, &run.Diagnostics, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s line %d", ErrRunNotFound, root, line)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build run: %w", err)
	}
	if start != nil {
		run.Start = start.UTC()
	}
	if end != nil {
		run.End = end.UTC()
	}

	if run.Bars, err = r.loadSeries(ctx, run.ID); err != nil {
		return nil, err
	}
	if run.Segments, err = r.loadSegments(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

func (r *Repository) loadSeries(ctx context.Context, runID uuid.UUID) ([]contracts.ContinuousBar, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT trade_date, line, source_symbol, symbol,
		       open, high, low, close, settlement, last, volume, open_interest
		FROM futures.continuous_bars
		WHERE run_id = $1
		ORDER BY trade_date
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query continuous bars: %w", err)
	}
	defer rows.Close()

	bars := []contracts.ContinuousBar{}
	for rows.Next() {
		var b contracts.ContinuousBar
		if err := rows.Scan(&b.Date, &b.Line, &b.SourceSymbol, &b.Symbol,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Settlement, &b.Last,
			&b.Volume, &b.OpenInterest); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return bars, nil
}

func (r *Repository) loadSegments(ctx context.Context, runID uuid.UUID) ([]contracts.Segment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT segment_start, segment_end, line, source_symbol, n_rows
		FROM futures.segments
		WHERE run_id = $1
		ORDER BY segment_start
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	segs := []contracts.Segment{}
	for rows.Next() {
		var s contracts.Segment
		if err := rows.Scan(&s.Start, &s.End, &s.Line, &s.SourceSymbol, &s.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.Start, s.End = s.Start.UTC(), s.End.UTC()
		segs = append(segs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return segs, nil
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// PruneRuns deletes builds created before cutoff; rows and segments cascade
func (r *Repository) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM futures.build_runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune build runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

package store

import (
	"context"
	"time"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/internal/normalize"
	"github.com/tagomatech/ETL/pkg/logger"
)

// BarLoader is the read side of Repository used by Fetcher
type BarLoader interface {
	LoadContractBars(ctx context.Context, symbol contracts.ContractSymbol, start, end time.Time) ([]contracts.Bar, error)
}

// BarSaver is the write side of Repository used by Archive
type BarSaver interface {
	SaveContractBars(ctx context.Context, source string, bars []contracts.Bar) (int, error)
}

// Fetcher serves stored bars as raw rows, for rebuilding without network access
type Fetcher struct {
	loader BarLoader
}

var _ contracts.BarFetcher = (*Fetcher)(nil)

// NewFetcher creates a database-backed fetcher
func NewFetcher(loader BarLoader) *Fetcher {
	return &Fetcher{loader: loader}
}

// FetchOne loads one contract from the warehouse
func (f *Fetcher) FetchOne(ctx context.Context, symbol string, start, end time.Time) ([]contracts.RawRow, error) {
	sym, err := calendar.ParseSymbol(symbol)
	if err != nil {
		return nil, err
	}
	bars, err := f.loader.LoadContractBars(ctx, sym, start, end)
	if err != nil {
		return nil, err
	}

	rows := make([]contracts.RawRow, len(bars))
	for i, b := range bars {
		rows[i] = toRawRow(b)
	}
	return rows, nil
}

// toRawRow emits only the fields a bar carries, keyed by canonical column names
func toRawRow(b contracts.Bar) contracts.RawRow {
	row := contracts.RawRow{
		"date":   b.Date.Format("2006-01-02"),
		"symbol": b.Symbol.String(),
	}
	for _, f := range contracts.PriceFields {
		if v, ok := b.Price(f); ok {
			row[string(f)] = v
		}
	}
	if b.Volume != nil {
		row["volume"] = *b.Volume
	}
	if b.OpenInterest != nil {
		row["open_interest"] = *b.OpenInterest
	}
	return row
}

// Archive writes through every successful fetch of next into the warehouse
// Archive failures are logged; the fetched rows are still returned.
type Archive struct {
	next   contracts.BarFetcher
	saver  BarSaver
	source string
	logger *logger.Logger
}

var _ contracts.BarFetcher = (*Archive)(nil)

// NewArchive wraps next; source is recorded with every stored bar
func NewArchive(next contracts.BarFetcher, saver BarSaver, source string, log *logger.Logger) *Archive {
	if log == nil {
		log = logger.Nop()
	}
	return &Archive{next: next, saver: saver, source: source, logger: log.Module("archive")}
}

// FetchOne delegates, then stores the normalized rows
func (a *Archive) FetchOne(ctx context.Context, symbol string, start, end time.Time) ([]contracts.RawRow, error) {
	rows, err := a.next.FetchOne(ctx, symbol, start, end)
	if err != nil || len(rows) == 0 {
		return rows, err
	}

	log := a.logger.ForContract(symbol)
	sym, err := calendar.ParseSymbol(symbol)
	if err != nil {
		log.WithError(err).Warn("Not archived")
		return rows, nil
	}
	bars, err := normalize.Normalize(rows, sym)
	if err != nil {
		log.WithError(err).Warn("Not archived")
		return rows, nil
	}

	n, err := a.saver.SaveContractBars(ctx, a.source, bars)
	if err != nil {
		log.WithError(err).Warn("Archive write failed")
		return rows, nil
	}
	log.WithField("bars", n).Debug("Archived")
	return rows, nil
}

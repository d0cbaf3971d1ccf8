package barchart

import (
	"context"
	"time"

	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/pkg/metrics"
)

// Fetcher adapts Client to contracts.BarFetcher
type Fetcher struct {
	client   *Client
	recorder *metrics.Recorder
}

var _ contracts.BarFetcher = (*Fetcher)(nil)

// NewFetcher wraps a client; recorder may be nil
func NewFetcher(client *Client, recorder *metrics.Recorder) *Fetcher {
	return &Fetcher{client: client, recorder: recorder}
}

// FetchOne pulls the daily history of one contract
func (f *Fetcher) FetchOne(ctx context.Context, symbol string, start, end time.Time) ([]contracts.RawRow, error) {
	began := time.Now()
	rows, err := f.client.History(ctx, symbol, HistoryParams{Start: start, End: end})

	outcome := metrics.OutcomeOK
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case len(rows) == 0:
		outcome = metrics.OutcomeEmpty
	}
	f.recorder.ObserveFetch(SourceName, outcome, time.Since(began))

	if err != nil {
		f.client.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"error":  err.Error(),
		}).Warn("Barchart fetch failed")
		return nil, err
	}

	f.client.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"rows":   len(rows),
	}).Debug("Barchart history fetched")
	return rows, nil
}

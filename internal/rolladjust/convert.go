package rolladjust

import (
	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
)

// FromContinuous turns a nearby-k series into canonical bars keyed by their source contract
func FromContinuous(series []contracts.ContinuousBar) ([]contracts.Bar, error) {
	bars := make([]contracts.Bar, 0, len(series))
	for _, cb := range series {
		sym, err := calendar.ParseSymbol(cb.SourceSymbol)
		if err != nil {
			return nil, err
		}
		bars = append(bars, contracts.Bar{
			Date:         cb.Date,
			Symbol:       sym,
			Prices:       cb.Prices,
			Volume:       cb.Volume,
			OpenInterest: cb.OpenInterest,
		})
	}
	return bars, nil
}

package nearby

import (
	"sort"
	"time"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
)

// contractBars is one contract's bars, in the order the symbol was supplied
type contractBars struct {
	symbol contracts.ContractSymbol
	bars   []contracts.Bar
}

// candidate is one ranked bar on one date
type candidate struct {
	order int
	key   int
	bar   contracts.Bar
}

// rankingOptions are the filters applied before selection
type rankingOptions struct {
	minVolume          *int64
	dropIncompleteDays bool
}

// selection is the ranked output plus the in-window dates dropped as incomplete
type selection struct {
	bars       []contracts.ContinuousBar
	incomplete []time.Time
}

// selectLine runs merge, dedupe, filter, rank, select and clip over ordered contracts
// ⭐ SSOT: nearby 순위 계산은 이 함수에서만
func selectLine(input []contractBars, req Request, opts rankingOptions) selection {
	byDate := make(map[time.Time][]candidate)

	for order, cb := range input {
		for _, b := range dedupe(cb.bars) {
			if opts.minVolume != nil && b.Volume != nil && *b.Volume <= *opts.minVolume {
				continue
			}
			// Bars without a finite settlement, last or close cannot be ranked.
			if !b.HasCloseLike() {
				continue
			}
			byDate[b.Date] = append(byDate[b.Date], candidate{
				order: order,
				key:   cb.symbol.ExpiryKey(),
				bar:   b,
			})
		}
	}

	var sel selection
	sel.bars = make([]contracts.ContinuousBar, 0, len(byDate))
	for date, cands := range byDate {
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].key != cands[j].key {
				return cands[i].key < cands[j].key
			}
			return cands[i].order < cands[j].order
		})

		// Clipping happens after ranking so out-of-window contracts still count.
		if !inWindow(date, req.Start, req.End) {
			continue
		}

		// Never fall back to a lower rank. With the policy off the rank simply
		// does not exist on such a date, so no row appears either way.
		active := len(cands)
		if active < req.Line {
			if opts.dropIncompleteDays {
				sel.incomplete = append(sel.incomplete, date)
			}
			continue
		}

		pick := cands[req.Line-1]
		sym := input[pick.order].symbol.String()
		sel.bars = append(sel.bars, contracts.ContinuousBar{
			Date:         date,
			Line:         req.Line,
			SourceSymbol: sym,
			Symbol:       sym,
			Prices:       pick.bar.Prices.Finite(),
			Volume:       pick.bar.Volume,
			OpenInterest: pick.bar.OpenInterest,
		})
	}

	sort.Slice(sel.bars, func(i, j int) bool { return sel.bars[i].Date.Before(sel.bars[j].Date) })
	sort.Slice(sel.incomplete, func(i, j int) bool { return sel.incomplete[i].Before(sel.incomplete[j]) })
	return sel
}

// dedupe keeps the last row seen for each date, in first-seen date order
func dedupe(bars []contracts.Bar) []contracts.Bar {
	idx := make(map[time.Time]int, len(bars))
	out := make([]contracts.Bar, 0, len(bars))
	for _, b := range bars {
		b.Date = calendar.Day(b.Date)
		if i, ok := idx[b.Date]; ok {
			out[i] = b
			continue
		}
		idx[b.Date] = len(out)
		out = append(out, b)
	}
	return out
}

func inWindow(d, start, end time.Time) bool {
	if !start.IsZero() && d.Before(start) {
		return false
	}
	if !end.IsZero() && d.After(end) {
		return false
	}
	return true
}

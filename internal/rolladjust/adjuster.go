// Package rolladjust removes roll gaps from a single multi-contract price history.
//
// The series is split into segments, maximal runs of consecutive bars (in date
// order) that share one contract. The gap at each roll is measured on the close
// field and redistributed either backward (anchored on the latest contract) or
// forward (anchored on the first). One scalar is added to every price field of a
// segment, so intraday ranges are preserved; this is an additive scheme, not a
// ratio adjustment.
package rolladjust

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tagomatech/ETL/internal/contracts"
)

// Direction selects the anchor of the adjustment
type Direction string

const (
	// Backward anchors the most recent contract; older history shifts.
	Backward Direction = "backward"
	// Forward anchors the first contract; later history shifts.
	Forward Direction = "forward"
)

// ParseDirection validates a direction name
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Backward, Forward:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("unknown roll direction %q (valid: backward, forward)", s)
	}
}

// Options configures Compute
type Options struct {
	Direction  Direction
	CloseField contracts.PriceField
}

// DefaultOptions returns backward adjustment on the close field
func DefaultOptions() Options {
	return Options{Direction: Backward, CloseField: contracts.FieldClose}
}

// Segment is one contract run with its roll gap and both adjustments
type Segment struct {
	Index      int
	Symbol     contracts.ContractSymbol
	Start      time.Time
	End        time.Time
	Rows       int
	FirstPrice decimal.Decimal
	LastPrice  decimal.Decimal
	// Gap is next segment's first price minus this segment's last price; zero for the final segment.
	Gap      decimal.Decimal
	Backward decimal.Decimal
	Forward  decimal.Decimal
}

// Adjustment returns the segment's adjustment for a direction
func (s Segment) Adjustment(d Direction) decimal.Decimal {
	if d == Forward {
		return s.Forward
	}
	return s.Backward
}

// AdjustedBar is a raw bar with its segment's adjustment applied to every price field
type AdjustedBar struct {
	contracts.Bar
	Segment    int
	Adjustment float64
	Adjusted   contracts.Prices
}

// Result holds the per-segment adjustments and the adjusted bars
type Result struct {
	Direction  Direction
	CloseField contracts.PriceField
	Segments   []Segment
	Bars       []AdjustedBar
}

// Compute segments bars by contract and computes roll adjustments
// ⭐ SSOT: 롤 갭 보정 계산은 이 함수에서만
// Bars lacking the close field cannot anchor a gap and are left out of the result.
func Compute(bars []contracts.Bar, opts Options) (*Result, error) {
	if opts.Direction == "" {
		opts.Direction = Backward
	}
	if opts.CloseField == "" {
		opts.CloseField = contracts.FieldClose
	}
	if _, err := ParseDirection(string(opts.Direction)); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, contracts.ErrEmptySeries
	}

	usable := make([]contracts.Bar, 0, len(bars))
	for _, b := range bars {
		if _, ok := b.Price(opts.CloseField); ok {
			usable = append(usable, b)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: %q", contracts.ErrNoCloseField, opts.CloseField)
	}
	sort.SliceStable(usable, func(i, j int) bool { return usable[i].Date.Before(usable[j].Date) })

	segments, owner := split(usable, opts.CloseField)
	accumulate(segments)

	res := &Result{
		CloseField: opts.CloseField,
		Segments:   segments,
		Bars:       make([]AdjustedBar, len(usable)),
	}
	for i, b := range usable {
		res.Bars[i] = AdjustedBar{Bar: b, Segment: owner[i]}
	}
	res.Apply(opts.Direction)
	return res, nil
}

// Apply re-targets the adjusted bars at a direction; segments already carry both
func (r *Result) Apply(d Direction) {
	r.Direction = d
	for i := range r.Bars {
		ab := &r.Bars[i]
		adj := r.Segments[ab.Segment].Adjustment(d)
		ab.Adjustment = adj.InexactFloat64()
		ab.Adjusted = shift(ab.Prices, adj)
	}
}

// AdjustedClose returns the adjusted close-field series in bar order
func (r *Result) AdjustedClose() []float64 {
	out := make([]float64, len(r.Bars))
	for i, b := range r.Bars {
		out[i], _ = b.Adjusted.Price(r.CloseField)
	}
	return out
}

// split cuts date-ordered bars into contract runs
func split(bars []contracts.Bar, closeField contracts.PriceField) ([]Segment, []int) {
	var segments []Segment
	owner := make([]int, len(bars))

	for i, b := range bars {
		px, _ := b.Price(closeField)
		price := decimal.NewFromFloat(px)

		if len(segments) == 0 || segments[len(segments)-1].Symbol != b.Symbol {
			segments = append(segments, Segment{
				Index:      len(segments),
				Symbol:     b.Symbol,
				Start:      b.Date,
				FirstPrice: price,
			})
		}

		seg := &segments[len(segments)-1]
		seg.End = b.Date
		seg.LastPrice = price
		seg.Rows++
		owner[i] = seg.Index
	}
	return segments, owner
}

// accumulate fills gaps, backward suffix sums and forward negated prefix sums
func accumulate(segments []Segment) {
	n := len(segments)
	for i := 0; i < n-1; i++ {
		segments[i].Gap = segments[i+1].FirstPrice.Sub(segments[i].LastPrice)
	}
	segments[n-1].Gap = decimal.Zero

	suffix := decimal.Zero
	for i := n - 1; i >= 0; i-- {
		suffix = suffix.Add(segments[i].Gap)
		segments[i].Backward = suffix
	}
	// The final gap is zero by definition, so the anchor stays unadjusted.

	prefix := decimal.Zero
	for i := 0; i < n; i++ {
		segments[i].Forward = prefix.Neg()
		prefix = prefix.Add(segments[i].Gap)
	}
}

func shift(p contracts.Prices, adj decimal.Decimal) contracts.Prices {
	var out contracts.Prices
	for _, f := range contracts.PriceFields {
		v, ok := p.Price(f)
		if !ok {
			continue
		}
		shifted := decimal.NewFromFloat(v).Add(adj).InexactFloat64()
		out.SetPrice(f, &shifted)
	}
	return out
}

package contracts

import (
	"fmt"
	"math"
	"time"
)

// monthCodes maps calendar months to exchange month letters
var monthCodes = [13]byte{0, 'F', 'G', 'H', 'J', 'K', 'M', 'N', 'Q', 'U', 'V', 'X', 'Z'}

// MonthCode returns the exchange letter for a month (F=Jan ... Z=Dec)
func MonthCode(m time.Month) byte {
	if m < time.January || m > time.December {
		return 0
	}
	return monthCodes[m]
}

// MonthFromCode returns the month for an exchange letter
func MonthFromCode(c byte) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		if monthCodes[m] == c {
			return m, true
		}
	}
	return 0, false
}

// ContractSymbol identifies one expiring futures contract (e.g. KCZ25)
// ⭐ SSOT: 계약 식별자는 이 타입으로만 표현
type ContractSymbol struct {
	Root  string     `json:"root"`
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
}

// ExpiryKey returns year*12 + month, the total order over contracts
func (s ContractSymbol) ExpiryKey() int {
	return s.Year*12 + int(s.Month)
}

// MonthCode returns the month letter of the contract
func (s ContractSymbol) MonthCode() byte {
	return MonthCode(s.Month)
}

// String renders the canonical symbol: root + month letter + two-digit year
func (s ContractSymbol) String() string {
	return fmt.Sprintf("%s%c%02d", s.Root, s.MonthCode(), ((s.Year%100)+100)%100)
}

// IsZero reports whether the symbol is unset
func (s ContractSymbol) IsZero() bool {
	return s.Root == "" && s.Month == 0 && s.Year == 0
}

// PriceField names one optional price column of a bar
type PriceField string

const (
	FieldOpen       PriceField = "open"
	FieldHigh       PriceField = "high"
	FieldLow        PriceField = "low"
	FieldClose      PriceField = "close"
	FieldSettlement PriceField = "settlement"
	FieldLast       PriceField = "last"
)

// PriceFields lists price columns in output order
var PriceFields = []PriceField{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldSettlement, FieldLast}

// CloseLikeFields are the fields that qualify a bar for ranking
var CloseLikeFields = []PriceField{FieldSettlement, FieldLast, FieldClose}

// ParsePriceField validates a field name
func ParsePriceField(name string) (PriceField, error) {
	for _, f := range PriceFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown price field %q", name)
}

// Prices holds the optional price columns shared by Bar and ContinuousBar
type Prices struct {
	Open       *float64 `json:"open,omitempty"`
	High       *float64 `json:"high,omitempty"`
	Low        *float64 `json:"low,omitempty"`
	Close      *float64 `json:"close,omitempty"`
	Settlement *float64 `json:"settlement,omitempty"`
	Last       *float64 `json:"last,omitempty"`
}

// Price returns the value of a price field, if present
// NaN and ±Inf count as absent.
func (p Prices) Price(f PriceField) (float64, bool) {
	ptr := p.ref(f)
	if ptr == nil || *ptr == nil {
		return 0, false
	}
	v := **ptr
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// SetPrice sets (or clears, with nil) a price field
func (p *Prices) SetPrice(f PriceField, v *float64) {
	if ptr := p.ref(f); ptr != nil {
		*ptr = v
	}
}

// Finite returns a copy with NaN and ±Inf fields cleared
func (p Prices) Finite() Prices {
	var out Prices
	for _, f := range PriceFields {
		if v, ok := p.Price(f); ok {
			out.SetPrice(f, Float(v))
		}
	}
	return out
}

// HasCloseLike reports whether settlement, last or close is present
func (p Prices) HasCloseLike() bool {
	for _, f := range CloseLikeFields {
		if _, ok := p.Price(f); ok {
			return true
		}
	}
	return false
}

func (p *Prices) ref(f PriceField) **float64 {
	switch f {
	case FieldOpen:
		return &p.Open
	case FieldHigh:
		return &p.High
	case FieldLow:
		return &p.Low
	case FieldClose:
		return &p.Close
	case FieldSettlement:
		return &p.Settlement
	case FieldLast:
		return &p.Last
	default:
		return nil
	}
}

// Bar is one canonical daily row of a single contract
type Bar struct {
	Date   time.Time      `json:"date"`
	Symbol ContractSymbol `json:"symbol"`
	Prices
	Volume       *int64 `json:"volume,omitempty"`
	OpenInterest *int64 `json:"open_interest,omitempty"`
}

// ContinuousBar is one output row of a nearby-k series
type ContinuousBar struct {
	Date         time.Time `json:"date"`
	Line         int       `json:"line"`
	SourceSymbol string    `json:"source_symbol"`
	Symbol       string    `json:"symbol"`
	Prices
	Volume       *int64 `json:"volume,omitempty"`
	OpenInterest *int64 `json:"open_interest,omitempty"`
}

// Segment is a maximal run of dates served by one source contract
type Segment struct {
	Start        time.Time `json:"segment_start"`
	End          time.Time `json:"segment_end"`
	Line         int       `json:"line"`
	SourceSymbol string    `json:"source_symbol"`
	Rows         int       `json:"n_rows"`
}

// RawRow is one untyped row as returned by a Bar Fetcher
type RawRow map[string]any

// SeriesColumns is the column order of a continuous series export
var SeriesColumns = []string{
	"date", "line", "source_symbol", "symbol",
	"open", "high", "low", "close", "settlement", "last",
	"volume", "open_interest",
}

// SegmentColumns is the column order of a segment export
var SegmentColumns = []string{"segment_start", "segment_end", "line", "source_symbol", "n_rows"}

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v
func Int(v int64) *int64 { return &v }

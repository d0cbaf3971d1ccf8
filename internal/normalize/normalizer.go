// Package normalize maps heterogeneous per-contract rows into canonical bars.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
)

// Accepted column aliases, lower-case, in priority order
var (
	dateAliases         = []string{"date", "tradedate", "timestamp"}
	openAliases         = []string{"open"}
	highAliases         = []string{"high"}
	lowAliases          = []string{"low"}
	closeAliases        = []string{"close", "last"}
	settlementAliases   = []string{"settlement", "settle", "set", "sett"}
	lastAliases         = []string{"last"}
	volumeAliases       = []string{"volume", "vol"}
	openInterestAliases = []string{"openinterest", "open_interest", "oi"}
)

// DefaultSymbolKeys are the ticker columns NormalizeSeries looks for
var DefaultSymbolKeys = []string{"symbol", "ticker", "fut_cur_gen_ticker", "contract"}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"20060102",
	"01/02/2006",
	"2006/01/02",
}

var priceAliases = map[contracts.PriceField][]string{
	contracts.FieldOpen:       openAliases,
	contracts.FieldHigh:       highAliases,
	contracts.FieldLow:        lowAliases,
	contracts.FieldClose:      closeAliases,
	contracts.FieldSettlement: settlementAliases,
	contracts.FieldLast:       lastAliases,
}

// columns resolves aliases to the actual keys present in one or more rows
type columns struct {
	byLower map[string]string
}

func newColumns(rows ...contracts.RawRow) columns {
	keys := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			keys[k] = true
		}
	}

	// Sorted so that "Close" and "close" in the same row resolve deterministically.
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	byLower := make(map[string]string, len(sorted))
	for _, k := range sorted {
		lk := strings.ToLower(strings.TrimSpace(k))
		if _, ok := byLower[lk]; !ok {
			byLower[lk] = k
		}
	}
	return columns{byLower: byLower}
}

func (c columns) pull(aliases ...string) string {
	for _, a := range aliases {
		if k, ok := c.byLower[a]; ok {
			return k
		}
	}
	return ""
}

// get reads the first alias present in row, nil when none is
func (c columns) get(row contracts.RawRow, aliases ...string) any {
	if k := c.pull(aliases...); k != "" {
		return row[k]
	}
	return nil
}

// Normalize canonicalizes the rows of one contract
// ⭐ SSOT: 원시 행 → Bar 변환은 이 함수에서만
// Columns are resolved per row, so rows may spell the same column differently.
// Non-numeric prices become absent. Rows whose date cannot be parsed are dropped.
// No close price is synthesized; such bars are emitted and left unranked downstream.
func Normalize(rows []contracts.RawRow, symbol contracts.ContractSymbol) ([]contracts.Bar, error) {
	if len(rows) == 0 {
		return []contracts.Bar{}, nil
	}

	if newColumns(rows...).pull(dateAliases...) == "" {
		return nil, fmt.Errorf("%w (expected one of: %s) for %s",
			contracts.ErrMissingDateColumn, strings.Join(dateAliases, ", "), symbol)
	}

	bars := make([]contracts.Bar, 0, len(rows))
	for _, row := range rows {
		cols := newColumns(row)
		d, ok := ParseDate(cols.get(row, dateAliases...))
		if !ok {
			continue
		}

		bar := contracts.Bar{Date: d, Symbol: symbol}
		for _, f := range contracts.PriceFields {
			bar.SetPrice(f, toFloat(cols.get(row, priceAliases[f]...)))
		}
		bar.Volume = toInt(cols.get(row, volumeAliases...))
		bar.OpenInterest = toInt(cols.get(row, openInterestAliases...))
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// NormalizeSeries canonicalizes one concatenated history that carries its own ticker column
// Rows are grouped by ticker, each group normalized, and the result merged in date order.
func NormalizeSeries(rows []contracts.RawRow, symbolKeys ...string) ([]contracts.Bar, error) {
	if len(rows) == 0 {
		return []contracts.Bar{}, nil
	}
	if len(symbolKeys) == 0 {
		symbolKeys = DefaultSymbolKeys
	}

	keys := lowerAll(symbolKeys)
	if newColumns(rows...).pull(keys...) == "" {
		return nil, fmt.Errorf("%w: no ticker column (expected one of: %s)",
			contracts.ErrInvalidSymbolFormat, strings.Join(symbolKeys, ", "))
	}

	var order []string
	groups := make(map[string][]contracts.RawRow)
	for _, row := range rows {
		raw, _ := newColumns(row).get(row, keys...).(string)
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, ok := groups[raw]; !ok {
			order = append(order, raw)
		}
		groups[raw] = append(groups[raw], row)
	}

	var out []contracts.Bar
	for _, raw := range order {
		sym, err := calendar.ParseSymbol(raw)
		if err != nil {
			return nil, err
		}
		bars, err := Normalize(groups[raw], sym)
		if err != nil {
			return nil, err
		}
		out = append(out, bars...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ParseDate coerces a date-like value into a UTC calendar date
func ParseDate(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return calendar.Day(val), true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return ParseDate(*val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return calendar.Day(t), true
			}
		}
		return time.Time{}, false
	case int, int32, int64, float64, float32, json.Number:
		f := toFloat(val)
		if f == nil {
			return time.Time{}, false
		}
		return fromEpoch(*f), true
	default:
		return time.Time{}, false
	}
}

// fromEpoch reads seconds, or milliseconds when the magnitude says so
func fromEpoch(f float64) time.Time {
	if math.Abs(f) >= 1e11 {
		return calendar.Day(time.UnixMilli(int64(f)))
	}
	return calendar.Day(time.Unix(int64(f), 0))
}

func toFloat(v any) *float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case *float64:
		if val == nil {
			return nil
		}
		f = *val
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func toInt(v any) *int64 {
	f := toFloat(v)
	if f == nil {
		return nil
	}
	n := int64(*f)
	return &n
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

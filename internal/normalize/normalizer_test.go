package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalize_BarchartRows(t *testing.T) {
	sym := calendar.MustParseSymbol("KCH25")
	rows := []contracts.RawRow{
		{"symbol": "KCH25", "date": "2024-12-03", "open": 301.5, "high": 305.0, "low": 299.0, "close": 304.2, "volume": 1200.0, "openInterest": 50000.0},
		{"symbol": "KCH25", "date": "2024-12-02", "open": "300", "high": "302", "low": "298", "close": "301", "volume": "1500", "openInterest": "49000"},
	}

	bars, err := Normalize(rows, sym)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	// Sorted ascending.
	assert.Equal(t, day(2024, 12, 2), bars[0].Date)
	assert.Equal(t, day(2024, 12, 3), bars[1].Date)

	first := bars[0]
	assert.Equal(t, sym, first.Symbol)
	v, ok := first.Price(contracts.FieldClose)
	require.True(t, ok)
	assert.Equal(t, 301.0, v)
	require.NotNil(t, first.Volume)
	assert.Equal(t, int64(1500), *first.Volume)
	require.NotNil(t, first.OpenInterest)
	assert.Equal(t, int64(49000), *first.OpenInterest)

	// No settlement or last column in the payload.
	_, ok = first.Price(contracts.FieldSettlement)
	assert.False(t, ok)
	_, ok = first.Price(contracts.FieldLast)
	assert.False(t, ok)
}

func TestNormalize_Aliases(t *testing.T) {
	sym := calendar.MustParseSymbol("ZCK25")
	rows := []contracts.RawRow{
		{"TradeDate": "2025-03-04", "Last": 450.25, "Settle": 451.0, "Vol": 10, "OI": 7},
	}

	bars, err := Normalize(rows, sym)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	b := bars[0]
	last, ok := b.Price(contracts.FieldLast)
	require.True(t, ok)
	assert.Equal(t, 450.25, last)

	// "last" doubles as the close column when no close exists.
	cl, ok := b.Price(contracts.FieldClose)
	require.True(t, ok)
	assert.Equal(t, 450.25, cl)

	settle, ok := b.Price(contracts.FieldSettlement)
	require.True(t, ok)
	assert.Equal(t, 451.0, settle)

	assert.Equal(t, int64(10), *b.Volume)
	assert.Equal(t, int64(7), *b.OpenInterest)
}

func TestNormalize_MixedColumnCasing(t *testing.T) {
	sym := calendar.MustParseSymbol("KCH25")
	rows := []contracts.RawRow{
		{"Date": "2024-12-02", "Close": 103.0, "Volume": 5},
		{"date": "2024-12-03", "close": 104.5, "vol": 6},
		{"DATE": "2024-12-04", "Last": 105.0, "OpenInterest": 9},
	}

	bars, err := Normalize(rows, sym)
	require.NoError(t, err)
	require.Len(t, bars, 3, "each row finds its own date column")

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		cl, ok := b.Price(contracts.FieldClose)
		require.True(t, ok, b.Date)
		closes = append(closes, cl)
	}
	assert.Equal(t, []float64{103, 104.5, 105}, closes)
	assert.Equal(t, int64(5), *bars[0].Volume)
	assert.Equal(t, int64(6), *bars[1].Volume)
	assert.Nil(t, bars[2].Volume)
	assert.Equal(t, int64(9), *bars[2].OpenInterest)
}

func TestNormalizeSeries_MixedTickerCasing(t *testing.T) {
	rows := []contracts.RawRow{
		{"date": "2024-12-02", "Ticker": "KCH25", "Close": 103.0},
		{"date": "2024-11-29", "ticker": "KCZ24", "close": 100.0},
	}

	bars, err := NormalizeSeries(rows)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "KCZ24", bars[0].Symbol.String())
	assert.Equal(t, 100.0, *bars[0].Close)
	assert.Equal(t, "KCH25", bars[1].Symbol.String())
	assert.Equal(t, 103.0, *bars[1].Close)
}

func TestNormalize_CoercionToAbsent(t *testing.T) {
	sym := calendar.MustParseSymbol("KCZ24")
	rows := []contracts.RawRow{
		{"date": "2024-11-29", "close": "n/a", "open": nil, "high": true, "volume": "lots"},
	}

	bars, err := Normalize(rows, sym)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	b := bars[0]
	assert.Nil(t, b.Close)
	assert.Nil(t, b.Open)
	assert.Nil(t, b.High)
	assert.Nil(t, b.Volume)
	assert.False(t, b.HasCloseLike(), "emitted but unranked")
}

func TestNormalize_DropsBadDates(t *testing.T) {
	sym := calendar.MustParseSymbol("KCZ24")
	rows := []contracts.RawRow{
		{"date": "not a date", "close": 1.0},
		{"date": "", "close": 2.0},
		{"close": 3.0},
		{"date": "2024-11-29T15:30:00-05:00", "close": 4.0},
	}

	bars, err := Normalize(rows, sym)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	// 15:30 New York is 20:30 UTC, same calendar day; time of day discarded.
	assert.Equal(t, day(2024, 11, 29), bars[0].Date)
}

func TestNormalize_MissingDateColumn(t *testing.T) {
	_, err := Normalize([]contracts.RawRow{{"close": 1.0}}, calendar.MustParseSymbol("KCZ24"))
	assert.ErrorIs(t, err, contracts.ErrMissingDateColumn)
}

func TestNormalize_Empty(t *testing.T) {
	bars, err := Normalize(nil, calendar.MustParseSymbol("KCZ24"))
	require.NoError(t, err)
	assert.NotNil(t, bars)
	assert.Empty(t, bars)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  time.Time
		ok    bool
	}{
		{"iso date", "2025-02-27", day(2025, 2, 27), true},
		{"compact", "20250227", day(2025, 2, 27), true},
		{"us slash", "02/27/2025", day(2025, 2, 27), true},
		{"datetime", "2025-02-27 23:59:59", day(2025, 2, 27), true},
		{"time value", time.Date(2025, 2, 27, 18, 0, 0, 0, time.UTC), day(2025, 2, 27), true},
		{"epoch seconds", int64(1740614400), day(2025, 2, 27), true},
		{"epoch millis", float64(1740614400000), day(2025, 2, 27), true},
		{"json number", json.Number("1740614400"), day(2025, 2, 27), true},
		{"garbage", "yesterday", time.Time{}, false},
		{"nil", nil, time.Time{}, false},
		{"zero time", time.Time{}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNormalizeSeries(t *testing.T) {
	rows := []contracts.RawRow{
		{"date": "2025-03-03", "FUT_CUR_GEN_TICKER": "KCK25", "Last": 108.0},
		{"date": "2024-12-02", "FUT_CUR_GEN_TICKER": "KCH25", "Last": 103.0},
		{"date": "2024-11-29", "FUT_CUR_GEN_TICKER": "KCZ24", "Last": 100.0},
	}

	bars, err := NormalizeSeries(rows)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, "KCZ24", bars[0].Symbol.String())
	assert.Equal(t, "KCH25", bars[1].Symbol.String())
	assert.Equal(t, "KCK25", bars[2].Symbol.String())
}

func TestNormalizeSeries_Errors(t *testing.T) {
	_, err := NormalizeSeries([]contracts.RawRow{{"date": "2025-01-02", "close": 1.0}})
	assert.ErrorIs(t, err, contracts.ErrInvalidSymbolFormat)

	_, err = NormalizeSeries([]contracts.RawRow{{"date": "2025-01-02", "ticker": "KC1 Comdty"}})
	assert.ErrorIs(t, err, contracts.ErrInvalidSymbolFormat)
}

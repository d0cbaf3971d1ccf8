package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/internal/normalize"
	"github.com/tagomatech/ETL/internal/rolladjust"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func series() []contracts.ContinuousBar {
	return []contracts.ContinuousBar{
		{Date: day(2024, 11, 29), Line: 1, SourceSymbol: "KCZ24", Symbol: "KCZ24",
			Prices: contracts.Prices{Close: contracts.Float(100)}, Volume: contracts.Int(1200)},
		{Date: day(2024, 12, 2), Line: 1, SourceSymbol: "KCH25", Symbol: "KCH25",
			Prices: contracts.Prices{Close: contracts.Float(103.25), Settlement: contracts.Float(103.5)}},
	}
}

func TestSeriesTable_PresentFieldsOnly(t *testing.T) {
	tbl := SeriesTable(series())
	assert.Equal(t, []string{"date", "line", "source_symbol", "symbol", "close", "settlement", "volume", "open_interest"}, tbl.Header)
	assert.Equal(t, [][]string{
		{"2024-11-29", "1", "KCZ24", "KCZ24", "100", "", "1200", ""},
		{"2024-12-02", "1", "KCH25", "KCH25", "103.25", "103.5", "", ""},
	}, tbl.Rows)

	empty := SeriesTable(nil)
	assert.Equal(t, []string{"date", "line", "source_symbol", "symbol", "volume", "open_interest"}, empty.Header)
	assert.Empty(t, empty.Rows)
}

func TestSegmentTable(t *testing.T) {
	tbl := SegmentTable([]contracts.Segment{
		{Start: day(2024, 11, 27), End: day(2024, 11, 29), Line: 1, SourceSymbol: "KCZ24", Rows: 2},
	})
	assert.Equal(t, contracts.SegmentColumns, tbl.Header)
	assert.Equal(t, [][]string{{"2024-11-27", "2024-11-29", "1", "KCZ24", "2"}}, tbl.Rows)
}

func TestAdjustedAndRollTables(t *testing.T) {
	bars := []contracts.Bar{
		{Date: day(2024, 11, 29), Symbol: calendar.MustParseSymbol("KCZ24"), Prices: contracts.Prices{Close: contracts.Float(100)}},
		{Date: day(2024, 12, 2), Symbol: calendar.MustParseSymbol("KCH25"), Prices: contracts.Prices{Close: contracts.Float(103)}},
	}
	res, err := rolladjust.Compute(bars, rolladjust.DefaultOptions())
	require.NoError(t, err)

	adj := AdjustedTable(res)
	assert.Equal(t, []string{"date", "symbol", "segment", "raw_close", "adjustment", "close"}, adj.Header)
	assert.Equal(t, []string{"2024-11-29", "KCZ24", "0", "100", "3", "103"}, adj.Rows[0])
	assert.Equal(t, []string{"2024-12-02", "KCH25", "1", "103", "0", "103"}, adj.Rows[1])

	rolls := RollTable(res)
	require.Len(t, rolls.Rows, 2)
	assert.Equal(t, []string{"0", "KCZ24", "2024-11-29", "2024-11-29", "1", "100", "100", "3", "3", "0"}, rolls.Rows[0])
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, SeriesTable(series())))

	assert.True(t, strings.HasPrefix(buf.String(), "date,line,source_symbol,symbol,close,settlement,volume,open_interest\n"))

	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, contracts.RawRow{
		"date": "2024-11-29", "line": "1", "source_symbol": "KCZ24", "symbol": "KCZ24",
		"close": "100", "volume": "1200",
	}, rows[0])

	// The rows feed straight back into the normalizer.
	bars, err := normalize.NormalizeSeries(rows)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 103.5, *bars[1].Settlement)
}

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("\ufeffDate , Last,FUT_CUR_GEN_TICKER\n2025-03-03,108,KCK25\n,,\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1, "blank lines are skipped")
	assert.Equal(t, contracts.RawRow{"Date": "2025-03-03", "Last": "108", "FUT_CUR_GEN_TICKER": "KCK25"}, rows[0])

	rows, err = ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = ReadCSV(strings.NewReader("a,b\n1,2,3\n"))
	assert.Error(t, err)
}

func TestXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf,
		Sheet{Name: "series", Table: SeriesTable(series())},
		Sheet{Name: "segments", Table: SegmentTable([]contracts.Segment{
			{Start: day(2024, 11, 29), End: day(2024, 11, 29), Line: 1, SourceSymbol: "KCZ24", Rows: 1},
		})},
	)
	require.NoError(t, err)

	rows, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "KCH25", rows[1]["symbol"])
	assert.Equal(t, "103.25", rows[1]["close"])

	segs, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "segments")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "KCZ24", segs[0]["source_symbol"])

	_, err = ReadXLSX(bytes.NewReader(buf.Bytes()), "missing")
	assert.Error(t, err)

	assert.Error(t, WriteXLSX(&buf))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "KC_nearby2_20241203.csv", FileName("kc", 2, day(2024, 12, 3), "csv"))
	assert.Equal(t, "CL_nearby1_latest.xlsx", FileName("CL", 1, time.Time{}, "xlsx"))
}

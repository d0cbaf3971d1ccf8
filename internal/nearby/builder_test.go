package nearby

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/pkg/metrics"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(sym string, d time.Time, close float64) contracts.Bar {
	return contracts.Bar{
		Date:   d,
		Symbol: calendar.MustParseSymbol(sym),
		Prices: contracts.Prices{Close: contracts.Float(close)},
	}
}

func withVolume(b contracts.Bar, v int64) contracts.Bar {
	b.Volume = contracts.Int(v)
	return b
}

// coffee has three contracts: two trade on 11-27 and 11-29, two on 12-02, one on 12-03.
func coffee() map[string][]contracts.Bar {
	return map[string][]contracts.Bar{
		"KCZ24": {
			bar("KCZ24", day(2024, 11, 27), 98),
			bar("KCZ24", day(2024, 11, 29), 100),
		},
		"KCH25": {
			bar("KCH25", day(2024, 11, 27), 101),
			bar("KCH25", day(2024, 11, 29), 103),
			bar("KCH25", day(2024, 12, 2), 103.5),
		},
		"KCK25": {
			bar("KCK25", day(2024, 12, 2), 105),
			bar("KCK25", day(2024, 12, 3), 106),
		},
	}
}

func sources(bars []contracts.ContinuousBar) []string {
	out := make([]string, len(bars))
	for i, b := range bars {
		out[i] = b.SourceSymbol
	}
	return out
}

func dates(bars []contracts.ContinuousBar) []time.Time {
	out := make([]time.Time, len(bars))
	for i, b := range bars {
		out[i] = b.Date
	}
	return out
}

func TestBuildFromBars_RanksByExpiryPerDate(t *testing.T) {
	b := NewBuilder(nil, nil, nil)

	tests := []struct {
		line    int
		sources []string
		dates   []time.Time
	}{
		{
			line:    1,
			sources: []string{"KCZ24", "KCZ24", "KCH25", "KCK25"},
			dates:   []time.Time{day(2024, 11, 27), day(2024, 11, 29), day(2024, 12, 2), day(2024, 12, 3)},
		},
		{
			line:    2,
			sources: []string{"KCH25", "KCH25", "KCK25"},
			dates:   []time.Time{day(2024, 11, 27), day(2024, 11, 29), day(2024, 12, 2)},
		},
		{
			line:    3,
			sources: []string{},
			dates:   []time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("line_%d", tt.line), func(t *testing.T) {
			res, err := b.BuildFromBars(coffee(), Request{Line: tt.line})
			require.NoError(t, err)

			assert.Equal(t, tt.line, res.Line)
			assert.Equal(t, tt.sources, sources(res.Bars))
			assert.Equal(t, tt.dates, dates(res.Bars))
			for _, row := range res.Bars {
				assert.Equal(t, tt.line, row.Line)
				assert.Equal(t, row.SourceSymbol, row.Symbol)
			}
		})
	}
}

func TestBuildFromBars_CarriesPricesAndVolume(t *testing.T) {
	data := map[string][]contracts.Bar{
		"KCH25": {{
			Date:   day(2025, 1, 2),
			Symbol: calendar.MustParseSymbol("KCH25"),
			Prices: contracts.Prices{
				Open: contracts.Float(300), High: contracts.Float(310),
				Low: contracts.Float(295), Settlement: contracts.Float(305),
			},
			Volume:       contracts.Int(1200),
			OpenInterest: contracts.Int(50000),
		}},
	}

	res, err := NewBuilder(nil, nil, nil).BuildFromBars(data, Request{Line: 1})
	require.NoError(t, err)
	require.Len(t, res.Bars, 1)

	row := res.Bars[0]
	assert.Equal(t, 305.0, *row.Settlement)
	assert.Nil(t, row.Close, "no close is invented")
	assert.Equal(t, int64(1200), *row.Volume)
	assert.Equal(t, int64(50000), *row.OpenInterest)
}

func TestBuildFromBars_IncompleteDayPolicy(t *testing.T) {
	// 2024-12-03 has only KCK25: no line-2 row, whatever the policy.
	for _, drop := range []bool{true, false} {
		b := NewBuilder(nil, nil, nil, WithDropIncompleteDays(drop))
		res, err := b.BuildFromBars(coffee(), Request{Line: 2})
		require.NoError(t, err)

		for _, row := range res.Bars {
			assert.NotEqual(t, day(2024, 12, 3), row.Date, "drop=%v", drop)
		}
		assert.Len(t, res.Bars, 3, "drop=%v", drop)

		if drop {
			assert.Equal(t, []time.Time{day(2024, 12, 3)}, res.IncompleteDays)
		} else {
			assert.Empty(t, res.IncompleteDays)
		}
	}
}

func TestBuildFromBars_Deterministic(t *testing.T) {
	b := NewBuilder(nil, nil, nil)

	first, err := b.BuildFromBars(coffee(), Request{Line: 1, WithSegments: true})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := b.BuildFromBars(coffee(), Request{Line: 1, WithSegments: true})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBuildFromBars_DedupeLastWins(t *testing.T) {
	data := map[string][]contracts.Bar{
		"KCH25": {
			bar("KCH25", day(2025, 1, 2), 300),
			bar("KCH25", time.Date(2025, 1, 2, 18, 30, 0, 0, time.UTC), 301),
		},
	}

	res, err := NewBuilder(nil, nil, nil).BuildFromBars(data, Request{Line: 1})
	require.NoError(t, err)
	require.Len(t, res.Bars, 1)
	assert.Equal(t, 301.0, *res.Bars[0].Close)
	assert.Equal(t, day(2025, 1, 2), res.Bars[0].Date)
}

func TestBuildFromBars_SameContractDifferentSpelling(t *testing.T) {
	data := map[string][]contracts.Bar{
		"KCH25": {bar("KCH25", day(2025, 1, 2), 300)},
		"kch25": {bar("KCH25", day(2025, 1, 2), 301)},
	}

	res, err := NewBuilder(nil, nil, nil).BuildFromBars(data, Request{Line: 1})
	require.NoError(t, err)
	require.Len(t, res.Bars, 1)
	// "KCH25" < "kch25", so the lower-case key's rows arrive last.
	assert.Equal(t, 301.0, *res.Bars[0].Close)

	res, err = NewBuilder(nil, nil, nil).BuildFromBars(data, Request{Line: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Bars, "one contract, not two")
}

func TestBuildFromBars_MinVolume(t *testing.T) {
	data := coffee()
	data["KCZ24"] = []contracts.Bar{
		withVolume(bar("KCZ24", day(2024, 11, 27), 98), 10),
		withVolume(bar("KCZ24", day(2024, 11, 29), 100), 11),
	}

	b := NewBuilder(nil, nil, nil, WithMinVolume(10))
	res, err := b.BuildFromBars(data, Request{Line: 1, End: day(2024, 11, 29)})
	require.NoError(t, err)

	// Volume at the threshold is dropped; missing volume is kept.
	assert.Equal(t, []string{"KCH25", "KCZ24"}, sources(res.Bars))
}

func TestBuildFromBars_UnrankedBarsExcluded(t *testing.T) {
	data := coffee()
	data["KCZ24"] = append(data["KCZ24"], contracts.Bar{
		Date:   day(2024, 12, 2),
		Symbol: calendar.MustParseSymbol("KCZ24"),
		Prices: contracts.Prices{Open: contracts.Float(99)},
	})

	res, err := NewBuilder(nil, nil, nil).BuildFromBars(data, Request{Line: 1, Start: day(2024, 12, 2), End: day(2024, 12, 2)})
	require.NoError(t, err)
	require.Len(t, res.Bars, 1)
	assert.Equal(t, "KCH25", res.Bars[0].SourceSymbol)
}

func TestBuildFromBars_NonFinitePricesAreUnranked(t *testing.T) {
	data := map[string][]contracts.Bar{
		"KCZ24": {bar("KCZ24", day(2024, 12, 2), math.NaN())},
		"KCH25": {
			{
				Date:   day(2024, 12, 2),
				Symbol: calendar.MustParseSymbol("KCH25"),
				Prices: contracts.Prices{Open: contracts.Float(math.Inf(1)), Close: contracts.Float(103)},
			},
		},
		"KCK25": {bar("KCK25", day(2024, 12, 2), math.Inf(-1))},
	}

	res, err := NewBuilder(nil, nil, nil).BuildFromBars(data, Request{Line: 1})
	require.NoError(t, err)
	require.Len(t, res.Bars, 1)

	front := res.Bars[0]
	assert.Equal(t, "KCH25", front.SourceSymbol)
	assert.Equal(t, 103.0, *front.Close)
	assert.Nil(t, front.Open, "non-finite fields are cleared from the output")

	// Only one contract ranks, so line 2 is empty.
	res, err = NewBuilder(nil, nil, nil).BuildFromBars(data, Request{Line: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Bars)
}

func TestBuildFromBars_ClipsAfterRanking(t *testing.T) {
	b := NewBuilder(nil, nil, nil)
	res, err := b.BuildFromBars(coffee(), Request{Line: 2, Start: day(2024, 11, 29), End: day(2024, 12, 2)})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2024, 11, 29), day(2024, 12, 2)}, dates(res.Bars))
	assert.Equal(t, []string{"KCH25", "KCK25"}, sources(res.Bars))
}

func TestBuildFromBars_Segments(t *testing.T) {
	res, err := NewBuilder(nil, nil, nil).BuildFromBars(coffee(), Request{Line: 1, WithSegments: true})
	require.NoError(t, err)
	require.Len(t, res.Segments, 3)

	assert.Equal(t, contracts.Segment{Start: day(2024, 11, 27), End: day(2024, 11, 29), Line: 1, SourceSymbol: "KCZ24", Rows: 2}, res.Segments[0])
	assert.Equal(t, "KCH25", res.Segments[1].SourceSymbol)
	assert.Equal(t, 1, res.Segments[1].Rows)
	assert.Equal(t, "KCK25", res.Segments[2].SourceSymbol)

	res, err = NewBuilder(nil, nil, nil).BuildFromBars(coffee(), Request{Line: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Segments)
}

func TestBuildFromBars_Empty(t *testing.T) {
	res, err := NewBuilder(nil, nil, nil).BuildFromBars(nil, Request{Line: 1, WithSegments: true})
	require.NoError(t, err)
	assert.NotNil(t, res.Bars)
	assert.Empty(t, res.Bars)
	assert.Empty(t, res.Segments)
}

func TestBuildFromBars_Errors(t *testing.T) {
	b := NewBuilder(nil, nil, nil)

	tests := []struct {
		name string
		data map[string][]contracts.Bar
		req  Request
		want error
	}{
		{"line zero", coffee(), Request{Line: 0}, contracts.ErrInvalidRequest},
		{"end before start", coffee(), Request{Line: 1, Start: day(2025, 1, 2), End: day(2025, 1, 1)}, contracts.ErrInvalidRequest},
		{"bad symbol key", map[string][]contracts.Bar{"KC1": nil}, Request{Line: 1}, contracts.ErrInvalidSymbolFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.BuildFromBars(tt.data, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// fakeFetcher serves raw rows per symbol and records call order
type fakeFetcher struct {
	rows  map[string][]contracts.RawRow
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) FetchOne(ctx context.Context, symbol string, start, end time.Time) ([]contracts.RawRow, error) {
	f.calls = append(f.calls, symbol)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.rows[symbol], nil
}

func coffeeRows() map[string][]contracts.RawRow {
	out := make(map[string][]contracts.RawRow)
	for sym, bars := range coffee() {
		for _, b := range bars {
			out[sym] = append(out[sym], contracts.RawRow{
				"symbol": sym,
				"date":   b.Date.Format("2006-01-02"),
				"close":  *b.Close,
			})
		}
	}
	return out
}

func TestBuild_FetchesSequentiallyInExpiryOrder(t *testing.T) {
	f := &fakeFetcher{rows: coffeeRows()}
	b := NewBuilder(nil, f, nil)

	res, err := b.Build(context.Background(), []string{"KCK25", "kcz24", "KCH25", "KCZ24"}, Request{Line: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"KCZ24", "KCH25", "KCK25"}, f.calls)
	assert.Equal(t, []string{"KCZ24", "KCZ24", "KCH25", "KCK25"}, sources(res.Bars))
	assert.Empty(t, res.Diagnostics)

	fromBars, err := b.BuildFromBars(coffee(), Request{Line: 1})
	require.NoError(t, err)
	assert.Equal(t, fromBars.Bars, res.Bars)
}

func TestBuild_SkipsFailedContracts(t *testing.T) {
	rows := coffeeRows()
	rows["KCK25"] = nil
	f := &fakeFetcher{
		rows: rows,
		errs: map[string]error{"KCH25": errors.New("HTTP 503")},
	}

	res, err := NewBuilder(nil, f, nil).Build(context.Background(), []string{"KCZ24", "KCH25", "KCK25"}, Request{Line: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"KCZ24", "KCZ24"}, sources(res.Bars))
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, "KCH25", res.Diagnostics[0].Symbol)
	assert.ErrorIs(t, res.Diagnostics[0], contracts.ErrFetchFailed)
	assert.ErrorContains(t, res.Diagnostics[0], "HTTP 503")
	assert.Equal(t, "KCK25", res.Diagnostics[1].Symbol)
	assert.ErrorIs(t, res.Diagnostics[1].Err, contracts.ErrFetchFailed)
}

func TestBuild_AllFailedIsEmptyNotError(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{
		"KCZ24": errors.New("boom"),
		"KCH25": errors.New("boom"),
	}}

	res, err := NewBuilder(nil, f, nil).Build(context.Background(), []string{"KCZ24", "KCH25"}, Request{Line: 1, WithSegments: true})
	require.NoError(t, err)
	assert.Empty(t, res.Bars)
	assert.Empty(t, res.Segments)
	assert.Len(t, res.Diagnostics, 2)
}

func TestBuild_FatalErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewBuilder(nil, nil, nil).Build(ctx, []string{"KCZ24"}, Request{Line: 1})
	assert.ErrorIs(t, err, contracts.ErrMissingFetcher)

	f := &fakeFetcher{rows: coffeeRows()}
	_, err = NewBuilder(nil, f, nil).Build(ctx, []string{"KCZ24", "coffee"}, Request{Line: 1})
	assert.ErrorIs(t, err, contracts.ErrInvalidSymbolFormat)
	assert.Empty(t, f.calls, "symbols are validated before any fetch")

	noDate := &fakeFetcher{rows: map[string][]contracts.RawRow{"KCZ24": {{"close": 1.0}}}}
	_, err = NewBuilder(nil, noDate, nil).Build(ctx, []string{"KCZ24"}, Request{Line: 1})
	assert.ErrorIs(t, err, contracts.ErrMissingDateColumn)
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeFetcher{rows: coffeeRows()}
	_, err := NewBuilder(nil, f, nil).Build(ctx, []string{"KCZ24", "KCH25"}, Request{Line: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.calls)
}

func TestBuild_RecordsMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	f := &fakeFetcher{rows: coffeeRows()}

	_, err := NewBuilder(nil, f, nil, WithRecorder(rec)).Build(context.Background(), []string{"KCZ24", "KCH25"}, Request{Line: 1})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(rec.Registry(), "futures_build_selected_rows_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func kcRequest() RootRequest {
	return RootRequest{
		Root:  "KC",
		Line:  2,
		Start: day(2024, 11, 1),
		End:   day(2025, 3, 3),
	}
}

func symbolsOf(plan []contracts.ContractSymbol) []string {
	out := make([]string, len(plan))
	for i, s := range plan {
		out[i] = s.String()
	}
	return out
}

func TestPlan(t *testing.T) {
	b := NewBuilder(calendar.NewDefault(), nil, nil)

	tests := []struct {
		name   string
		modify func(r *RootRequest)
		want   []string
	}{
		{
			name:   "ladder padded by line-1",
			modify: func(r *RootRequest) {},
			want:   []string{"KCZ24", "KCH25", "KCK25"},
		},
		{
			name:   "declared front further out",
			modify: func(r *RootRequest) { r.CurrentFront = "kck25" },
			want:   []string{"KCZ24", "KCH25", "KCK25", "KCN25"},
		},
		{
			name:   "months override",
			modify: func(r *RootRequest) { r.Months = []string{"Z H"} },
			want:   []string{"KCZ24", "KCH25", "KCZ25"},
		},
		{
			name: "no month start inside window seeds with front",
			modify: func(r *RootRequest) {
				r.Start, r.End, r.Line = day(2025, 3, 5), day(2025, 3, 20), 1
			},
			want: []string{"KCH25"},
		},
		{
			name:   "lower-case root",
			modify: func(r *RootRequest) { r.Root = "kc"; r.Line = 1 },
			want:   []string{"KCZ24", "KCH25"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := kcRequest()
			tt.modify(&req)

			plan, err := b.Plan(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, symbolsOf(plan))
		})
	}
}

func TestPlan_Errors(t *testing.T) {
	b := NewBuilder(calendar.NewDefault(), nil, nil)

	tests := []struct {
		name   string
		modify func(r *RootRequest)
		want   error
	}{
		{"root mismatch", func(r *RootRequest) { r.CurrentFront = "CLH25" }, contracts.ErrRootMismatch},
		{"bad front", func(r *RootRequest) { r.CurrentFront = "KC25" }, contracts.ErrInvalidRequest},
		{"missing root", func(r *RootRequest) { r.Root = "" }, contracts.ErrInvalidRequest},
		{"missing end", func(r *RootRequest) { r.End = time.Time{} }, contracts.ErrInvalidRequest},
		{"inverted window", func(r *RootRequest) { r.Start, r.End = r.End, r.Start }, contracts.ErrInvalidRequest},
		{"bad months", func(r *RootRequest) { r.Months = []string{"HX1"} }, nil},
		{"front unreachable", func(r *RootRequest) { r.CurrentFront = "KCZ35" }, contracts.ErrUnreachableSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := kcRequest()
			tt.modify(&req)

			_, err := b.Plan(req)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestBuildFromRoot(t *testing.T) {
	f := &fakeFetcher{rows: coffeeRows()}
	b := NewBuilder(calendar.NewDefault(), f, nil)

	req := kcRequest()
	req.Line = 1
	req.End = day(2024, 12, 3)
	req.WithSegments = true

	res, err := b.BuildFromRoot(context.Background(), req)
	require.NoError(t, err)

	// Front at 2024-12-03 is KCZ24; line 1 needs no padding.
	assert.Equal(t, []string{"KCZ24"}, f.calls)
	assert.Equal(t, []string{"KCZ24", "KCZ24"}, sources(res.Bars))
	require.Len(t, res.Segments, 1)
	assert.Equal(t, 2, res.Segments[0].Rows)

	_, err = NewBuilder(nil, nil, nil).BuildFromRoot(context.Background(), req)
	assert.ErrorIs(t, err, contracts.ErrMissingFetcher)
}

// Package export writes continuous series, segments and roll adjustments
// as CSV or XLSX and reads tabular roll input back into raw rows.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/internal/rolladjust"
)

const dateLayout = "2006-01-02"

// Table is a header plus string cells, shared by the CSV and XLSX writers
type Table struct {
	Header []string
	Rows   [][]string
}

// SeriesTable lays out a continuous series
// Price columns appear only when at least one bar carries them.
func SeriesTable(bars []contracts.ContinuousBar) Table {
	fields := presentFields(len(bars), func(i int) contracts.Prices { return bars[i].Prices })

	header := []string{"date", "line", "source_symbol", "symbol"}
	for _, f := range fields {
		header = append(header, string(f))
	}
	header = append(header, "volume", "open_interest")

	t := Table{Header: header, Rows: make([][]string, 0, len(bars))}
	for _, b := range bars {
		row := []string{b.Date.Format(dateLayout), strconv.Itoa(b.Line), b.SourceSymbol, b.Symbol}
		row = appendPrices(row, b.Prices, fields)
		row = append(row, formatInt(b.Volume), formatInt(b.OpenInterest))
		t.Rows = append(t.Rows, row)
	}
	return t
}

// SegmentTable lays out segments in contracts.SegmentColumns order
func SegmentTable(segs []contracts.Segment) Table {
	t := Table{Header: append([]string(nil), contracts.SegmentColumns...), Rows: make([][]string, 0, len(segs))}
	for _, s := range segs {
		t.Rows = append(t.Rows, []string{
			s.Start.Format(dateLayout),
			s.End.Format(dateLayout),
			strconv.Itoa(s.Line),
			s.SourceSymbol,
			strconv.Itoa(s.Rows),
		})
	}
	return t
}

// AdjustedTable lays out roll-adjusted bars: raw close, adjustment, then adjusted prices
func AdjustedTable(res *rolladjust.Result) Table {
	fields := presentFields(len(res.Bars), func(i int) contracts.Prices { return res.Bars[i].Adjusted })

	header := []string{"date", "symbol", "segment", "raw_" + string(res.CloseField), "adjustment"}
	for _, f := range fields {
		header = append(header, string(f))
	}

	t := Table{Header: header, Rows: make([][]string, 0, len(res.Bars))}
	for _, b := range res.Bars {
		raw, _ := b.Price(res.CloseField)
		row := []string{
			b.Date.Format(dateLayout),
			b.Symbol.String(),
			strconv.Itoa(b.Segment),
			formatFloat(raw),
			formatFloat(b.Adjustment),
		}
		t.Rows = append(t.Rows, appendPrices(row, b.Adjusted, fields))
	}
	return t
}

// RollTable lays out per-segment gaps and both adjustments
func RollTable(res *rolladjust.Result) Table {
	t := Table{
		Header: []string{"segment", "symbol", "start", "end", "n_rows", "first_price", "last_price", "gap", "backward", "forward"},
		Rows:   make([][]string, 0, len(res.Segments)),
	}
	for _, s := range res.Segments {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(s.Index),
			s.Symbol.String(),
			s.Start.Format(dateLayout),
			s.End.Format(dateLayout),
			strconv.Itoa(s.Rows),
			s.FirstPrice.String(),
			s.LastPrice.String(),
			s.Gap.String(),
			s.Backward.String(),
			s.Forward.String(),
		})
	}
	return t
}

// WriteCSV writes a table with a header line
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// ReadCSV reads a headered CSV into raw rows
// Empty cells are left out so the normalizer treats them as absent.
func ReadCSV(r io.Reader) ([]contracts.RawRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []contracts.RawRow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return toRawRows(header, records), nil
}

func toRawRows(header []string, records [][]string) []contracts.RawRow {
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]contracts.RawRow, 0, len(records))
	for _, rec := range records {
		row := make(contracts.RawRow, len(header))
		for i, v := range rec {
			if i >= len(header) || header[i] == "" {
				break
			}
			if v = strings.TrimSpace(v); v != "" {
				row[header[i]] = v
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

func presentFields(n int, prices func(i int) contracts.Prices) []contracts.PriceField {
	var out []contracts.PriceField
	for _, f := range contracts.PriceFields {
		for i := 0; i < n; i++ {
			if _, ok := prices(i).Price(f); ok {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func appendPrices(row []string, p contracts.Prices, fields []contracts.PriceField) []string {
	for _, f := range fields {
		v, ok := p.Price(f)
		if !ok {
			row = append(row, "")
			continue
		}
		row = append(row, formatFloat(v))
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// FileName builds "<root>_nearby<line>_<end>.<ext>"; a zero end renders as "latest"
func FileName(root string, line int, end time.Time, ext string) string {
	stamp := "latest"
	if !end.IsZero() {
		stamp = end.Format("20060102")
	}
	return fmt.Sprintf("%s_nearby%d_%s.%s", strings.ToUpper(root), line, stamp, ext)
}

// Package segment derives contract provenance ranges from a selected nearby series.
package segment

import (
	"sort"

	"github.com/tagomatech/ETL/internal/contracts"
)

// Extract returns the maximal runs of consecutive rows sharing one source contract
// Rows are compared in date order; a change of SourceSymbol starts a new segment.
func Extract(series []contracts.ContinuousBar) []contracts.Segment {
	segments := []contracts.Segment{}
	if len(series) == 0 {
		return segments
	}

	rows := append([]contracts.ContinuousBar(nil), series...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	line := rows[0].Line
	for _, row := range rows {
		n := len(segments)
		if n > 0 && segments[n-1].SourceSymbol == row.SourceSymbol {
			segments[n-1].End = row.Date
			segments[n-1].Rows++
			continue
		}
		segments = append(segments, contracts.Segment{
			Start:        row.Date,
			End:          row.Date,
			Line:         line,
			SourceSymbol: row.SourceSymbol,
			Rows:         1,
		})
	}
	return segments
}

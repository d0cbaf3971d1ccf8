package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagomatech/ETL/internal/contracts"
)

func row(d int, sym string) contracts.ContinuousBar {
	return contracts.ContinuousBar{
		Date:         time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC),
		Line:         2,
		SourceSymbol: sym,
		Symbol:       sym,
	}
}

func TestExtract(t *testing.T) {
	series := []contracts.ContinuousBar{
		row(2, "A"), row(3, "A"), row(6, "A"),
		row(7, "B"), row(8, "B"),
		row(9, "C"),
	}

	segs := Extract(series)
	require.Len(t, segs, 3)

	rows := []int{segs[0].Rows, segs[1].Rows, segs[2].Rows}
	assert.Equal(t, []int{3, 2, 1}, rows)

	assert.Equal(t, "A", segs[0].SourceSymbol)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), segs[0].Start)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), segs[0].End)
	assert.Equal(t, 2, segs[1].Line)
	assert.Equal(t, segs[2].Start, segs[2].End)
}

func TestExtract_Empty(t *testing.T) {
	segs := Extract(nil)
	assert.NotNil(t, segs)
	assert.Empty(t, segs)
}

func TestExtract_ReturningContractStartsNewSegment(t *testing.T) {
	segs := Extract([]contracts.ContinuousBar{row(2, "A"), row(3, "B"), row(4, "A")})
	require.Len(t, segs, 3)
	assert.Equal(t, "A", segs[2].SourceSymbol)
}

func TestExtract_UsesDateOrder(t *testing.T) {
	// Out-of-order input is compared in date order.
	segs := Extract([]contracts.ContinuousBar{row(4, "B"), row(2, "A"), row(3, "A")})
	require.Len(t, segs, 2)
	assert.Equal(t, "A", segs[0].SourceSymbol)
	assert.Equal(t, 2, segs[0].Rows)
	assert.Equal(t, "B", segs[1].SourceSymbol)
}

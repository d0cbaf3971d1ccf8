package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/internal/nearby"
	"github.com/tagomatech/ETL/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseFile(t *testing.T) {
	f, err := ParseFile([]byte(`
timezone: America/New_York
prune_after_days: 30
targets:
  - root: kc
    lines: [1, 2]
    schedule: "0 30 18 * * 1-5"
  - root: CL
    lines: [1]
    lookback_days: 90
    months: [F, G, H]
    schedule: "@daily"
  - root: KC
    lines: [3]
    schedule: "@weekly"
`))
	require.NoError(t, err)
	require.Len(t, f.Targets, 3)
	assert.Equal(t, "KC", f.Targets[0].Root)
	assert.Equal(t, 365, f.Targets[0].LookbackDays)
	assert.Equal(t, 90, f.Targets[1].LookbackDays)
	assert.Equal(t, "0 0 3 * * *", f.PruneSchedule)
	assert.Equal(t, []string{"KC", "CL"}, f.Roots())

	loc, err := f.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestParseFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no targets", `timezone: UTC`},
		{"bad root", "targets:\n  - {root: K1, lines: [1], schedule: '@daily'}"},
		{"zero line", "targets:\n  - {root: KC, lines: [0], schedule: '@daily'}"},
		{"no lines", "targets:\n  - {root: KC, schedule: '@daily'}"},
		{"no schedule", "targets:\n  - {root: KC, lines: [1]}"},
		{"bad timezone", "timezone: Mars/Olympus\ntargets:\n  - {root: KC, lines: [1], schedule: '@daily'}"},
		{"not yaml", "targets: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

type fakeBuilder struct {
	requests []nearby.RootRequest
	err      error
}

func (f *fakeBuilder) BuildFromRoot(_ context.Context, rr nearby.RootRequest) (*nearby.Result, error) {
	f.requests = append(f.requests, rr)
	if f.err != nil {
		return nil, f.err
	}
	return &nearby.Result{
		Line: rr.Line,
		Bars: []contracts.ContinuousBar{
			{Date: rr.End, Line: rr.Line, SourceSymbol: "KCH25", Symbol: "KCH25", Prices: contracts.Prices{Close: contracts.Float(300)}},
		},
		Segments:    []contracts.Segment{{Start: rr.End, End: rr.End, Line: rr.Line, SourceSymbol: "KCH25", Rows: 1}},
		Diagnostics: []nearby.Diagnostic{{Symbol: "KCZ24", Err: contracts.ErrFetchFailed}},
	}, nil
}

type fakeRunSaver struct {
	runs []*store.Run
}

func (f *fakeRunSaver) SaveRun(_ context.Context, run *store.Run) (uuid.UUID, error) {
	f.runs = append(f.runs, run)
	return uuid.New(), nil
}

func TestContinuousBuildJob(t *testing.T) {
	target := Target{Root: "KC", Lines: []int{1, 2}, LookbackDays: 30, Schedule: "@daily", Months: []string{"H", "K"}}
	builder := &fakeBuilder{}
	saver := &fakeRunSaver{}
	dir := t.TempDir()

	job := NewContinuousBuildJob(target, builder, nil, NewStoreSink(saver), NewFileSink(dir))
	job.now = func() time.Time { return time.Date(2025, 1, 15, 23, 10, 0, 0, time.UTC) }

	assert.Equal(t, "continuous_build_kc", job.Name())
	assert.Equal(t, "@daily", job.Schedule())
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, builder.requests, 2)
	rr := builder.requests[1]
	assert.Equal(t, 2, rr.Line)
	assert.Equal(t, day(2025, 1, 15), rr.End)
	assert.Equal(t, day(2024, 12, 16), rr.Start)
	assert.Equal(t, []string{"H", "K"}, rr.Months)
	assert.True(t, rr.WithSegments)

	require.Len(t, saver.runs, 2)
	assert.Equal(t, "KC", saver.runs[0].Root)
	assert.Equal(t, []string{"KCZ24: fetch failed"}, saver.runs[0].Diagnostics)

	for _, name := range []string{"KC_nearby1_20250115.csv", "KC_nearby2_20250115_segments.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestContinuousBuildJob_Error(t *testing.T) {
	builder := &fakeBuilder{err: contracts.ErrRootMismatch}
	job := NewContinuousBuildJob(Target{Root: "KC", Lines: []int{1, 2}, LookbackDays: 1}, builder, nil)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, contracts.ErrRootMismatch)
	assert.Len(t, builder.requests, 1, "first failing line stops the run")
}

type fakePruner struct {
	cutoff time.Time
	err    error
}

func (f *fakePruner) PruneRuns(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestPruneRunsJob(t *testing.T) {
	p := &fakePruner{}
	job := NewPruneRunsJob(p, 48*time.Hour, "@daily", nil)
	now := time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-48*time.Hour), p.cutoff)

	p.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}

type mapUniverse map[string][]string

func (m mapUniverse) Contracts(_ context.Context, root string) ([]string, error) {
	if syms, ok := m[root]; ok {
		return syms, nil
	}
	return nil, errors.New("unknown root")
}

func TestUniverseJob(t *testing.T) {
	u := mapUniverse{"KC": {"KCH25"}, "CL": {"CLF25"}}

	job := NewUniverseJob(u, []string{"KC", "CL"}, "@daily", nil)
	assert.NoError(t, job.Run(context.Background()))

	job = NewUniverseJob(u, []string{"KC", "ZZ", "CL"}, "@daily", nil)
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZZ")
}

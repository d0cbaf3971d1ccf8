package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tagomatech/ETL/internal/export"
	"github.com/tagomatech/ETL/internal/nearby"
	"github.com/tagomatech/ETL/internal/store"
)

// Sink receives every finished build
type Sink interface {
	Save(ctx context.Context, root string, start, end time.Time, res *nearby.Result) error
}

// RunSaver is the write side of store.Repository
type RunSaver interface {
	SaveRun(ctx context.Context, run *store.Run) (uuid.UUID, error)
}

// StoreSink persists builds as runs
type StoreSink struct {
	repo RunSaver
}

// NewStoreSink creates a database sink
func NewStoreSink(repo RunSaver) *StoreSink {
	return &StoreSink{repo: repo}
}

// Save stores the build with its segments and diagnostics
func (s *StoreSink) Save(ctx context.Context, root string, start, end time.Time, res *nearby.Result) error {
	run := &store.Run{
		Root:     root,
		Line:     res.Line,
		Start:    start,
		End:      end,
		Bars:     res.Bars,
		Segments: res.Segments,
	}
	for _, d := range res.Diagnostics {
		run.Diagnostics = append(run.Diagnostics, d.Error())
	}
	if _, err := s.repo.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save %s line %d: %w", root, res.Line, err)
	}
	return nil
}

// FileSink writes series and segment CSVs into a directory
type FileSink struct {
	dir string
}

// NewFileSink creates a CSV sink; the directory is created on first use
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Save writes <ROOT>_nearby<k>_<end>.csv and its _segments companion
func (s *FileSink) Save(_ context.Context, root string, _, end time.Time, res *nearby.Result) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	name := export.FileName(root, res.Line, end, "csv")
	seriesPath := filepath.Join(s.dir, name)
	if err := writeFile(seriesPath, export.SeriesTable(res.Bars)); err != nil {
		return err
	}
	if res.Segments == nil {
		return nil
	}
	segPath := filepath.Join(s.dir, strings.TrimSuffix(name, ".csv")+"_segments.csv")
	return writeFile(segPath, export.SegmentTable(res.Segments))
}

func writeFile(path string, t export.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.WriteCSV(f, t); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

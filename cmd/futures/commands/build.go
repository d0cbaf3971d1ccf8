package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/internal/export"
	"github.com/tagomatech/ETL/internal/nearby"
	"github.com/tagomatech/ETL/internal/rolladjust"
	"github.com/tagomatech/ETL/internal/store"
)

var (
	buildLine           int
	buildStart          string
	buildEnd            string
	buildMonths         []string
	buildFront          string
	buildSymbols        []string
	buildSource         string
	buildOut            string
	buildSegments       bool
	buildAdjust         string
	buildMinVolume      int64
	buildKeepIncomplete bool
	buildArchive        bool
	buildSave           bool
)

// buildCmd builds one nearby line
var buildCmd = &cobra.Command{
	Use:   "build [ROOT]",
	Short: "Build a nearby-k continuous series",
	Long: `Build a nearby-k continuous series.

With ROOT, the contract list is planned from the trading cycle: every
contract whose delivery month starts in the window plus enough contracts
past the front to rank line k. With --symbols the list is taken as given.

Output is CSV on stdout unless --out is set; a .xlsx path writes a
workbook with series and segments sheets.`,
	Example: `  go run ./cmd/futures build KC --line 1 --start 2024-01-01 --end 2024-12-31
  go run ./cmd/futures build KC --line 2 --start 2024-11-01 --end 2024-12-31 --segments --out kc2.xlsx
  go run ./cmd/futures build --symbols KCZ24,KCH25,KCK25 --line 1 --adjust backward
  go run ./cmd/futures build KC --line 1 --start 2024-01-01 --end 2024-12-31 --source db`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	f := buildCmd.Flags()
	f.IntVar(&buildLine, "line", 1, "nearby line (1 = front)")
	f.StringVar(&buildStart, "start", "", "window start (YYYY-MM-DD)")
	f.StringVar(&buildEnd, "end", "", "window end (YYYY-MM-DD)")
	f.StringSliceVar(&buildMonths, "months", nil, "cycle letters overriding the calendar")
	f.StringVar(&buildFront, "front", "", "current front contract override")
	f.StringSliceVar(&buildSymbols, "symbols", nil, "explicit contract list instead of ROOT")
	f.StringVar(&buildSource, "source", sourceBarchart, "bar source: barchart or db")
	f.StringVarP(&buildOut, "out", "o", "", "output path (.csv or .xlsx); stdout when empty")
	f.BoolVar(&buildSegments, "segments", false, "also write contract segments")
	f.StringVar(&buildAdjust, "adjust", "", "roll-adjust the output: backward or forward")
	f.Int64Var(&buildMinVolume, "min-volume", -1, "drop bars with volume at or below this (default FUTURES_MIN_VOLUME)")
	f.BoolVar(&buildKeepIncomplete, "keep-incomplete", false, "do not report dates with fewer than line contracts")
	f.BoolVar(&buildArchive, "archive", false, "store fetched contract bars in the database")
	f.BoolVar(&buildSave, "save", false, "store the built series as a run in the database")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (len(buildSymbols) == 0) {
		return fmt.Errorf("give either ROOT or --symbols")
	}
	start, err := parseDate("start", buildStart)
	if err != nil {
		return err
	}
	end, err := parseDate("end", buildEnd)
	if err != nil {
		return err
	}
	var direction rolladjust.Direction
	if buildAdjust != "" {
		if direction, err = rolladjust.ParseDirection(buildAdjust); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fetcher, err := a.fetcher(ctx, buildSource, buildArchive)
	if err != nil {
		return err
	}
	builder := a.builder(fetcher, buildMinVolume, buildKeepIncomplete)

	began := time.Now()
	var (
		res   *nearby.Result
		label string
	)
	if len(args) == 1 {
		label = strings.ToUpper(args[0])
		res, err = builder.BuildFromRoot(ctx, nearby.RootRequest{
			Root:         args[0],
			Line:         buildLine,
			Start:        start,
			End:          end,
			Months:       buildMonths,
			CurrentFront: buildFront,
			WithSegments: true,
		})
	} else {
		label = strings.Join(buildSymbols, ",")
		res, err = builder.Build(ctx, buildSymbols, nearby.Request{
			Line:         buildLine,
			Start:        start,
			End:          end,
			WithSegments: true,
		})
	}
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	printHeader(stderr, "Continuous build",
		"Input", label,
		"Line", strconv.Itoa(res.Line),
		"Window", formatDate(start)+" ~ "+formatDate(end),
		"Source", buildSource)
	for _, d := range res.Diagnostics {
		printWarning(stderr, "skipped %s", d.Error())
	}
	if len(res.IncompleteDays) > 0 {
		printWarning(stderr, "%d dates had fewer than %d ranked contracts", len(res.IncompleteDays), res.Line)
	}

	if buildSave {
		repo, err := a.repository(ctx)
		if err != nil {
			return err
		}
		root := label
		if len(args) == 0 {
			root = rootLabel(res.Bars)
		}
		run := &store.Run{Root: root, Line: res.Line, Start: start, End: end, Bars: res.Bars, Segments: res.Segments}
		for _, d := range res.Diagnostics {
			run.Diagnostics = append(run.Diagnostics, d.Error())
		}
		id, err := repo.SaveRun(ctx, run)
		if err != nil {
			return err
		}
		printSuccess(stderr, "saved run %s", id)
	}

	sheets, err := buildSheets(res, direction)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), buildOut, sheets...); err != nil {
		return err
	}

	printSuccess(stderr, "%d rows, %d segments in %.2fs", len(res.Bars), len(res.Segments), time.Since(began).Seconds())
	return nil
}

// buildSheets lays out the series (adjusted when asked) and, optionally, its segments
func buildSheets(res *nearby.Result, direction rolladjust.Direction) ([]export.Sheet, error) {
	series := export.Sheet{Name: "series", Table: export.SeriesTable(res.Bars)}
	if direction != "" && len(res.Bars) > 0 {
		bars, err := rolladjust.FromContinuous(res.Bars)
		if err != nil {
			return nil, err
		}
		adj, err := rolladjust.Compute(bars, rolladjust.Options{Direction: direction})
		if err != nil {
			return nil, err
		}
		series.Table = export.AdjustedTable(adj)
	}

	sheets := []export.Sheet{series}
	if buildSegments {
		sheets = append(sheets, export.Sheet{Name: "segments", Table: export.SegmentTable(res.Segments)})
	}
	return sheets, nil
}

// rootLabel names a run built from an explicit list
func rootLabel(bars []contracts.ContinuousBar) string {
	roots := make(map[string]bool)
	for _, b := range bars {
		if sym, err := calendar.ParseSymbol(b.SourceSymbol); err == nil {
			roots[sym.Root] = true
		}
	}
	if len(roots) == 1 {
		for r := range roots {
			return r
		}
	}
	return "MIXED"
}

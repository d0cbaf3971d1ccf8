package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/nearby"
)

var (
	ladderStart  string
	ladderEnd    string
	ladderMonths []string

	planLine  int
	planFront string
)

// ladderCmd prints the contracts whose delivery month starts inside a window
var ladderCmd = &cobra.Command{
	Use:   "ladder ROOT",
	Short: "List contracts of a root whose delivery month starts in a window",
	Example: `  go run ./cmd/futures ladder KC --start 2024-01-01 --end 2024-12-31
  go run ./cmd/futures ladder CL --start 2025-01-01 --end 2025-03-31 --months "F G H"`,
	Args: cobra.ExactArgs(1),
	RunE: runLadder,
}

// planCmd prints the contract list a root build would fetch
var planCmd = &cobra.Command{
	Use:   "plan ROOT",
	Short: "Show the contracts a nearby-k build of ROOT would fetch",
	Example: `  go run ./cmd/futures plan KC --line 2 --start 2024-11-01 --end 2024-12-31
  go run ./cmd/futures plan KC --line 1 --start 2024-11-01 --end 2024-12-31 --front KCK25`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

// stepCmd moves a contract along its cycle
var stepCmd = &cobra.Command{
	Use:     "step SYMBOL N",
	Short:   "Move a contract N steps along its trading cycle (negative goes back)",
	Example: `  go run ./cmd/futures step KCZ24 2`,
	Args:    cobra.ExactArgs(2),
	RunE:    runStep,
}

func init() {
	rootCmd.AddCommand(ladderCmd, planCmd, stepCmd)

	for _, c := range []*cobra.Command{ladderCmd, planCmd} {
		c.Flags().StringVar(&ladderStart, "start", "", "window start (YYYY-MM-DD)")
		c.Flags().StringVar(&ladderEnd, "end", "", "window end (YYYY-MM-DD)")
		c.Flags().StringSliceVar(&ladderMonths, "months", nil, "cycle letters overriding the calendar, e.g. \"H K N U Z\"")
		_ = c.MarkFlagRequired("start")
		_ = c.MarkFlagRequired("end")
	}
	planCmd.Flags().IntVar(&planLine, "line", 1, "nearby line (1 = front)")
	planCmd.Flags().StringVar(&planFront, "front", "", "current front contract override")
}

func runLadder(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	root, err := calendar.NormalizeRoot(args[0])
	if err != nil {
		return err
	}
	start, err := parseDate("start", ladderStart)
	if err != nil {
		return err
	}
	end, err := parseDate("end", ladderEnd)
	if err != nil {
		return err
	}

	cycle := a.cal.CycleFor(root)
	if len(ladderMonths) > 0 {
		if cycle, err = calendar.ParseCycleLetters(ladderMonths...); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for _, sym := range a.cal.GenerateLadder(root, cycle, start, end) {
		fmt.Fprintln(out, sym)
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	start, err := parseDate("start", ladderStart)
	if err != nil {
		return err
	}
	end, err := parseDate("end", ladderEnd)
	if err != nil {
		return err
	}

	symbols, err := a.builder(nil, -1, false).Plan(nearby.RootRequest{
		Root:         args[0],
		Line:         planLine,
		Start:        start,
		End:          end,
		Months:       ladderMonths,
		CurrentFront: planFront,
	})
	if err != nil {
		return err
	}

	names := make([]string, len(symbols))
	for i, s := range symbols {
		names[i] = s.String()
	}
	printHeader(cmd.ErrOrStderr(), "Fetch plan",
		"Root", strings.ToUpper(args[0]),
		"Line", strconv.Itoa(planLine),
		"Window", formatDate(start)+" ~ "+formatDate(end),
		"Contracts", strconv.Itoa(len(names)))
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
	return nil
}

func runStep(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sym, err := calendar.ParseSymbol(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("N must be an integer: %w", err)
	}

	next, err := a.cal.Step(sym, n, a.cal.CycleFor(sym.Root))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), next)
	return nil
}

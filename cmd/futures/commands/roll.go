package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/internal/export"
	"github.com/tagomatech/ETL/internal/normalize"
	"github.com/tagomatech/ETL/internal/rolladjust"
)

var (
	rollDirection  string
	rollCloseField string
	rollTickerCol  string
	rollSheet      string
	rollOut        string
)

// rollCmd removes roll gaps from a single-series history carrying its own ticker column
var rollCmd = &cobra.Command{
	Use:   "roll FILE",
	Short: "Roll-adjust a concatenated history (CSV or XLSX with a ticker column)",
	Long: `Roll-adjust a concatenated multi-contract history.

The input needs a date column, a close-like column and a ticker column
(symbol, ticker, FUT_CUR_GEN_TICKER or contract; see --ticker-col).
Every price column of a contract run is shifted by the same amount.`,
	Example: `  go run ./cmd/futures roll kc_generic.csv
  go run ./cmd/futures roll kc_generic.xlsx --direction forward --out kc_adj.xlsx
  go run ./cmd/futures roll kc2.csv --ticker-col source_symbol --close-field settlement`,
	Args: cobra.ExactArgs(1),
	RunE: runRoll,
}

func init() {
	rootCmd.AddCommand(rollCmd)

	f := rollCmd.Flags()
	f.StringVar(&rollDirection, "direction", string(rolladjust.Backward), "backward (anchor latest) or forward (anchor first)")
	f.StringVar(&rollCloseField, "close-field", string(contracts.FieldClose), "price field the gaps are measured on")
	f.StringVar(&rollTickerCol, "ticker-col", "", "ticker column name (default: auto-detect)")
	f.StringVar(&rollSheet, "sheet", "", "sheet of an XLSX input (default: first)")
	f.StringVarP(&rollOut, "out", "o", "", "output path (.csv or .xlsx); stdout when empty")
}

func runRoll(cmd *cobra.Command, args []string) error {
	direction, err := rolladjust.ParseDirection(rollDirection)
	if err != nil {
		return err
	}
	field, err := contracts.ParsePriceField(rollCloseField)
	if err != nil {
		return err
	}

	rows, err := readTable(args[0], rollSheet)
	if err != nil {
		return err
	}

	var keys []string
	if rollTickerCol != "" {
		keys = []string{rollTickerCol}
	}
	bars, err := normalize.NormalizeSeries(rows, keys...)
	if err != nil {
		return err
	}

	res, err := rolladjust.Compute(bars, rolladjust.Options{Direction: direction, CloseField: field})
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	printHeader(stderr, "Roll adjustment",
		"Input", args[0],
		"Direction", string(direction),
		"Field", string(field),
		"Rows", strconv.Itoa(len(res.Bars)),
		"Segments", strconv.Itoa(len(res.Segments)))
	rolls := export.RollTable(res)
	printTable(stderr, rolls)
	if dropped := len(bars) - len(res.Bars); dropped > 0 {
		printWarning(stderr, "%d bars without %s were left out", dropped, field)
	}

	return writeOutput(cmd.OutOrStdout(), rollOut,
		export.Sheet{Name: "adjusted", Table: export.AdjustedTable(res)},
		export.Sheet{Name: "rolls", Table: rolls},
	)
}

// readTable reads a CSV or XLSX input into raw rows
func readTable(path, sheet string) ([]contracts.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return export.ReadXLSX(f, sheet)
	}
	return export.ReadCSV(f)
}

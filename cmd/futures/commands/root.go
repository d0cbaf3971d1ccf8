package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cyclesFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "futures",
	Short: "Continuous futures series builder",
	Long: `Futures continuous series CLI

Builds nearby-k continuous series from per-contract daily histories,
removes roll gaps and plans which contracts a window needs.

Usage:
  go run ./cmd/futures [command]

Examples:
  go run ./cmd/futures ladder KC --start 2024-01-01 --end 2024-12-31
  go run ./cmd/futures build KC --line 2 --start 2024-01-01 --end 2024-12-31 --out kc2.csv
  go run ./cmd/futures roll kc_bbg.csv --direction backward
  go run ./cmd/futures schedule start --file schedule.yaml`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cyclesFile, "cycles", "", "product cycle YAML (default FUTURES_CYCLES_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging (per-contract progress)")
}

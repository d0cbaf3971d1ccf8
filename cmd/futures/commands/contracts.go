package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// contractsCmd lists what the data source currently shows for a root
var contractsCmd = &cobra.Command{
	Use:     "contracts ROOT",
	Short:   "List the contracts Barchart lists for a root",
	Example: `  go run ./cmd/futures contracts KC`,
	Args:    cobra.ExactArgs(1),
	RunE:    runContracts,
}

func init() {
	rootCmd.AddCommand(contractsCmd)
}

func runContracts(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	universe, err := a.universe(ctx)
	if err != nil {
		return err
	}
	symbols, err := universe.Contracts(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, s := range symbols {
		fmt.Fprintln(out, s)
	}
	if len(symbols) == 0 {
		printWarning(cmd.ErrOrStderr(), "no contracts listed for %s", args[0])
	}
	return nil
}

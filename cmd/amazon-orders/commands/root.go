package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"amazon-order-export/lib/restyutil"
	"amazon-order-export/lib/scrapers/amazon/core"
	"amazon-order-export/lib/telemetry"

	"github.com/spf13/cobra"
)

var verbose *bool

var rootCmd = &cobra.Command{
	Use:   "amazon-orders",
	Short: "amazon-orders exports the order history of an amazon.de account.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)

		_, err := telemetry.SetupFromEnv(cmd.Context(), "amazon-orders")
		if err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to setup telemetry", "err", err)
		}
		if *verbose {
			core.SetRestyInstrumentOutput(
				restyutil.NewFilesystemOutput(".dev/resty/amazon"),
			)
		}
	},
}

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every request at debug level.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

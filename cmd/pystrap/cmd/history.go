package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pystrap/internal/service/history"
)

var (
	// historyLimit caps how many runs the listing shows.
	historyLimit int

	// historyCmd lists the recorded setup and sync runs.
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show the recorded setup and sync runs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &history.Options{
				ConfigPath: configPath,
				Limit:      historyLimit,
			}

			return history.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultLimit, "maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

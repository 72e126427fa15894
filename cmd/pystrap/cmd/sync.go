package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pystrap/internal/service/sync"
)

// syncCmd refreshes local bootstrap files from the published bundle.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh bootstrap files from the published bundle",
	Long: `Downloads the bundle description from the configured folder and refreshes
the local files whose checksums differ. Files are replaced atomically with
checksum validation. Run pystrap afterwards to install the refreshed
requirements.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &sync.Options{
			ConfigPath: configPath,
		}

		return sync.Run(ctx, options)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(syncCmd)
}

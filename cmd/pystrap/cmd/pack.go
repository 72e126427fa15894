package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pystrap/internal/service/pack"
)

// packCmd prepares the bundle description for distribution.
var packCmd = &cobra.Command{
	Use:   "pack [bundle-folder]",
	Short: "Prepare the bundle description for distribution",
	Long: `Hashes the configured bundle files from the current directory, writes the
bundle description next to them and stores the bundle folder URL in the
settings. Run it inside the checkout being published, then upload the
listed files to the folder.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &pack.Options{
			ConfigPath: configPath,
			BundleURL:  args[0],
		}

		return pack.Run(ctx, options)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(packCmd)
}

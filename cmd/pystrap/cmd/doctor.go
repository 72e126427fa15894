package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pystrap/internal/service/doctor"
)

// doctorCmd checks the workstation without changing anything on it.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the workstation for common setup problems",
	Long: `Runs read-only diagnostics over the interpreter, the package manager,
the requirements manifest, environment variables, credentials and the
workspace folders. Warnings do not fail the command, failed checks do.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &doctor.Options{
			ConfigPath: configPath,
		}

		return doctor.Run(ctx, options)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(doctorCmd)
}

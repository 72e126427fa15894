package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pystrap/internal/logger"
	"github.com/oshokin/pystrap/internal/service/bootstrap"
	"github.com/oshokin/pystrap/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// manifestPath overrides the requirements manifest location.
	manifestPath string
	// logLevel adjusts logger verbosity for every command.
	logLevel string

	// rootCmd represents the base command for bootstrapping the workspace.
	rootCmd = &cobra.Command{
		Use:   "pystrap",
		Short: "Install the Python requirements for the local workspace.",
		Long: `Prepares a Python workspace on the local machine.

The requirements manifest is resolved relative to the installation folder
of the executable, so the command behaves the same from any working
directory. The run upgrades pip, installs the manifest and prints the
commands for activating a virtual environment. Every package manager
invocation is retried once with a fallback command, which keeps the setup
alive on machines where only one of pip3 or python3 -m pip works.`,
		Args: cobra.NoArgs,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if level, found := logger.ParseLogLevel(logLevel); found {
				logger.SetLevel(level)
			}
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &bootstrap.Options{
				ConfigPath:   configPath,
				ManifestPath: manifestPath,
			}

			return bootstrap.Run(ctx, options)
		},
	}
)

// Execute runs the pystrap CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	// The config default stays empty so a missing settings file falls back
	// to built-in defaults instead of failing the run.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", "", "path to configuration file (pystrap-settings.yaml when present)")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "logging verbosity: debug, info, warn or error")
	rootCmd.Flags().
		StringVarP(&manifestPath, "manifest", "m", "", "path to the requirements manifest, overrides configuration")
}

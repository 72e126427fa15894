package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/oshokin/pystrap/internal/config"
	"github.com/oshokin/pystrap/internal/logger"
	"github.com/oshokin/pystrap/internal/service/common"
)

// Options are inputs accepted by the doctor entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
}

// checkStatus is the outcome of a single diagnostic check.
type checkStatus string

const (
	statusOK      checkStatus = "ok"
	statusWarning checkStatus = "warning"
	statusFailed  checkStatus = "failed"
)

// checkResult is one line of the diagnostic report.
type checkResult struct {
	// Name identifies the check.
	Name string
	// Status is the outcome.
	Status checkStatus
	// Details is a human-readable explanation.
	Details string
}

// versionProbeTimeout is the timeout for executing version commands.
const versionProbeTimeout = 10 * time.Second

// errChecksFailed indicates that at least one diagnostic check failed.
var errChecksFailed = errors.New("environment checks failed")

// doctor evaluates the installation without changing anything on disk.
type doctor struct {
	// cfg holds the settings the checks are evaluated against.
	cfg *config.Config
	// env is the dotenv view of the installer root, may be empty.
	env map[string]string
}

// Run executes every diagnostic check and reports the results.
// The command never mutates the environment; it only reads and probes.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "pystrap-doctor")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	d := &doctor{
		cfg: cfg,
		env: loadEnvFile(ctx, cfg),
	}

	results := d.runChecks(ctx)

	var failed int

	for _, result := range results {
		logResult(ctx, result)

		if result.Status == statusFailed {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d: %w", failed, len(results), errChecksFailed)
	}

	logger.Info(ctx, "Environment looks healthy")

	return nil
}

// runChecks evaluates all checks in a fixed order.
func (d *doctor) runChecks(ctx context.Context) []checkResult {
	return []checkResult{
		d.checkInterpreter(ctx),
		d.checkPackageManager(ctx),
		d.checkManifest(ctx),
		d.checkRequiredEnv(ctx),
		d.checkCredentials(ctx),
		d.checkWorkspaceDirectories(ctx),
	}
}

// loadEnvFile reads the dotenv file from the installer root, best effort.
func loadEnvFile(ctx context.Context, cfg *config.Config) map[string]string {
	envPath, err := common.ResolveAgainstRoot(cfg.EnvFile)
	if err != nil {
		return nil
	}

	vars, err := godotenv.Read(envPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warnf(ctx, "Unable to read %s: %v", envPath, err)
		}

		return nil
	}

	return vars
}

// lookupEnv reads a variable from the process environment first and falls
// back to the dotenv file, matching how the application itself resolves them.
func (d *doctor) lookupEnv(name string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}

	return d.env[name]
}

// logResult writes one report line at a level matching the outcome.
func logResult(ctx context.Context, result checkResult) {
	switch result.Status {
	case statusOK:
		logger.InfoKV(ctx, "Check passed", "check", result.Name, "details", result.Details)
	case statusWarning:
		logger.WarnKV(ctx, "Check needs attention", "check", result.Name, "details", result.Details)
	case statusFailed:
		logger.ErrorKV(ctx, "Check failed", "check", result.Name, "details", result.Details)
	}
}

package bootstrap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/oshokin/pystrap/internal/config"
	"github.com/oshokin/pystrap/internal/domain/setup"
	"github.com/oshokin/pystrap/internal/logger"
	"github.com/oshokin/pystrap/internal/repository/journal"
	"github.com/oshokin/pystrap/internal/service/common"
	"github.com/oshokin/pystrap/internal/service/pip"
)

var (
	errSetupAlreadyRunning = errors.New("another pystrap run is already active")
	errManifestMissing     = errors.New("requirements manifest not found")
)

// workspaceDirPermissions is used when creating workspace directories.
const workspaceDirPermissions os.FileMode = 0o755

// Options are inputs accepted by the setup entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// ManifestPath overrides the requirements manifest location for this run.
	// Unlike settings values it resolves against the caller's directory,
	// because it was typed into a shell.
	ManifestPath string
}

// runner holds the mutable state and helpers for a single setup execution.
// It is intentionally unexported—call Run(ctx, Options) from callers.
type runner struct {
	cfg              *config.Config     // Settings loaded from YAML or built-in defaults.
	manifestPath     string             // Resolved requirements manifest location.
	markerPath       string             // Run marker guarding against parallel execution.
	pip              *pip.Runner        // Package-manager invocations with fallback.
	journal          journal.Repository // Best-effort run history, may be nil.
	actor            *setup.Actor       // Who launched this run.
	pipVersion       string             // Version line reported after the upgrade.
	manifestChecksum string             // Base64 checksum of the manifest, once verified.
	startedAt        time.Time          // When this run began.
}

// Run executes the setup lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "pystrap")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer r.cleanup(ctx)

	runErr := r.Run(ctx)
	r.record(ctx, runErr)

	if runErr != nil {
		logger.ErrorKV(ctx, "Setup run failed", "error", runErr)
		return runErr
	}

	logger.Info(ctx, "Setup completed")

	return nil
}

// newRunner prepares the run and writes a marker to avoid concurrent runs.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	r := &runner{
		startedAt: time.Now(),
	}

	if common.IsAnotherRunActive(ctx) {
		return r, errSetupAlreadyRunning
	}

	r.markerPath = common.MarkerPath()

	marker, err := os.Create(r.markerPath)
	if err != nil {
		return r, err
	}

	if err = marker.Close(); err != nil {
		return r, err
	}

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return r, err
	}

	r.cfg = settings

	r.manifestPath, err = common.ResolveManifest(settings, opts.ManifestPath)
	if err != nil {
		return r, err
	}

	r.actor, err = common.DetectActor()
	if err != nil {
		return r, err
	}

	r.pip = pip.NewRunner(r.pipOptions(ctx)...)
	r.openJournal(ctx)

	return r, nil
}

// Run executes the setup workflow for this runner instance:
// 1) Upgrade the package manager.
// 2) Verify the requirements manifest exists.
// 3) Install every package pinned in the manifest.
// 4) Ensure workspace directories exist.
// 5) Print virtual-environment guidance.
func (r *runner) Run(ctx context.Context) error {
	logger.Info(ctx, "Upgrading the package manager")

	if err := r.pip.SelfUpgrade(ctx); err != nil {
		return fmt.Errorf("upgrade package manager: %w", err)
	}

	r.detectPipVersion(ctx)

	logger.InfoKV(ctx, "Checking the requirements manifest", "path", r.manifestPath)

	if err := r.verifyManifest(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Installing packages from the manifest")

	if err := r.pip.InstallRequirements(ctx, r.manifestPath); err != nil {
		return fmt.Errorf("install requirements: %w", err)
	}

	if err := r.ensureWorkspaceDirectories(ctx); err != nil {
		return fmt.Errorf("prepare workspace directories: %w", err)
	}

	r.printEnvironmentGuidance(ctx)

	return nil
}

// pipOptions assembles runner options from settings and the environment file.
func (r *runner) pipOptions(ctx context.Context) []pip.Option {
	opts := []pip.Option{
		pip.WithCommands(r.cfg.PipCommand, r.cfg.PipFallbackCommand),
		pip.WithTimeout(r.cfg.CommandTimeout),
	}

	if vars := r.loadEnvFile(ctx); len(vars) > 0 {
		opts = append(opts, pip.WithExtraEnv(vars))
	}

	return opts
}

// loadEnvFile reads the dotenv file from the installer root, best effort.
// Package indexes behind authenticated proxies are configured there, so the
// variables are handed to every package-manager subprocess.
func (r *runner) loadEnvFile(ctx context.Context) map[string]string {
	envPath, err := common.ResolveAgainstRoot(r.cfg.EnvFile)
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

	logger.InfoKV(ctx, "Loaded environment file", "path", envPath, "variables", len(vars))

	return vars
}

// openJournal opens the run journal, best effort. A broken journal must
// never block an installation.
func (r *runner) openJournal(ctx context.Context) {
	journalPath, err := common.ResolveAgainstRoot(r.cfg.JournalPath)
	if err != nil {
		return
	}

	repo, err := journal.NewSQLiteRepository(ctx, journalPath)
	if err != nil {
		logger.Warnf(ctx, "Run journal unavailable: %v", err)
		return
	}

	r.journal = repo
}

// detectPipVersion records the version line for the journal, best effort.
func (r *runner) detectPipVersion(ctx context.Context) {
	version, err := r.pip.Version(ctx)
	if err != nil {
		logger.Warnf(ctx, "Could not get package manager version: %v", err)
		return
	}

	r.pipVersion = version
	logger.InfoKV(ctx, "Package manager is ready", "version", version)
}

// verifyManifest checks that the resolved manifest references an existing file.
// A missing manifest is terminal: there is nothing to install, so the install
// step is never attempted.
func (r *runner) verifyManifest(ctx context.Context) error {
	if _, err := os.Stat(r.manifestPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", r.manifestPath, errManifestMissing)
		}

		return fmt.Errorf("stat manifest: %w", err)
	}

	r.compareWithLastRun(ctx)

	return nil
}

// compareWithLastRun notes when the manifest did not change since the last
// successful setup. Installation still proceeds: the package manager is
// idempotent and may need to repair a broken environment.
func (r *runner) compareWithLastRun(ctx context.Context) {
	checksum, err := common.GetFileChecksum(r.manifestPath)
	if err != nil {
		logger.Warnf(ctx, "Could not hash the manifest: %v", err)
		return
	}

	r.manifestChecksum = base64.StdEncoding.EncodeToString(checksum)

	if r.journal == nil {
		return
	}

	lastRun, err := r.journal.LastSuccessful(ctx, setup.KindSetup)
	if err != nil {
		if !errors.Is(err, journal.ErrNotFound) {
			logger.Warnf(ctx, "Could not read the run journal: %v", err)
		}

		return
	}

	if lastRun.ManifestChecksum == r.manifestChecksum {
		logger.InfoKV(ctx, "Manifest unchanged since the last successful setup",
			"finished_at", lastRun.FinishedAt.Format(time.RFC3339))
	}
}

// ensureWorkspaceDirectories creates the directories the application expects.
func (r *runner) ensureWorkspaceDirectories(ctx context.Context) error {
	for _, dir := range r.cfg.WorkspaceDirs {
		resolved, err := common.ResolveAgainstRoot(dir)
		if err != nil {
			return err
		}

		if err = os.MkdirAll(resolved, workspaceDirPermissions); err != nil {
			return fmt.Errorf("create %s: %w", resolved, err)
		}

		logger.InfoKV(ctx, "Workspace directory is ready", "path", resolved)
	}

	return nil
}

// printEnvironmentGuidance logs how to create and activate an isolated
// environment. The text is static: the installer never manages virtual
// environments itself.
func (r *runner) printEnvironmentGuidance(ctx context.Context) {
	var builder strings.Builder

	builder.WriteString("Packages are installed. To work inside an isolated environment:\n")

	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		builder.WriteString("python -m venv venv\n")
		builder.WriteString("venv\\Scripts\\activate\n")
		builder.WriteString("pip install -r requirements.txt")
	} else {
		builder.WriteString("python3 -m venv venv\n")
		builder.WriteString("source venv/bin/activate\n")
		builder.WriteString("pip3 install -r requirements.txt")
	}

	logger.Info(ctx, builder.String())
}

// record appends the finished run to the journal, best effort.
func (r *runner) record(ctx context.Context, runErr error) {
	if r.journal == nil {
		return
	}

	finished := &setup.Run{
		Kind:             setup.KindSetup,
		Status:           setup.StatusSucceeded,
		Actor:            r.actor,
		PipVersion:       r.pipVersion,
		ManifestChecksum: r.manifestChecksum,
		StartedAt:        r.startedAt,
		FinishedAt:       time.Now(),
	}

	if runErr != nil {
		finished.Status = setup.StatusFailed
		finished.Err = runErr.Error()
	}

	if err := r.journal.Record(ctx, finished); err != nil {
		logger.Warnf(ctx, "Could not record the run: %v", err)
	}
}

// cleanup removes the running marker and closes the journal.
func (r *runner) cleanup(ctx context.Context) {
	if r.markerPath != "" {
		if _, err := os.Stat(r.markerPath); err == nil {
			_ = os.Remove(r.markerPath)
		}
	}

	if r.journal != nil {
		_ = r.journal.Close()
	}

	logger.Info(ctx, "The setup has been stopped")
}

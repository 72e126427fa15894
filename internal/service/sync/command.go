package sync

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	goupdate "github.com/doitdistributed/go-update"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/pystrap/internal/config"
	"github.com/oshokin/pystrap/internal/domain/setup"
	"github.com/oshokin/pystrap/internal/logger"
	"github.com/oshokin/pystrap/internal/repository/journal"
	"github.com/oshokin/pystrap/internal/service/common"
)

var (
	errSyncAlreadyRunning   = errors.New("another pystrap run is already active")
	errBundleFolderRequired = errors.New("bundle folder is not configured")
	errEmptyDescription     = errors.New("bundle description is empty")
	errNoChecksum           = errors.New("checksum missing for file")
)

// Options are inputs accepted by the sync entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
}

// runner holds the mutable state and helpers for a single sync execution.
// It is intentionally unexported—call Run(ctx, Options) from callers.
type runner struct {
	cfg                *config.Config     // Settings loaded from YAML.
	client             *common.Client     // HTTP client for the bundle folder.
	description        *Description       // Remote description of the published bundle.
	markerPath         string             // Run marker guarding against parallel execution.
	temporaryDirectory string             // Where new files are downloaded before apply.
	downloadedFiles    map[string]string  // Bundle name -> local temp path.
	journal            journal.Repository // Best-effort run history, may be nil.
	actor              *setup.Actor       // Who launched this run.
	startedAt          time.Time          // When this run began.
	refreshedCount     int                // How many files were replaced.
}

// Run executes the sync lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "pystrap-sync")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer r.cleanup(ctx)

	runErr := r.Run(ctx)
	r.record(ctx, runErr)

	if runErr != nil {
		logger.ErrorKV(ctx, "Sync run failed", "error", runErr)
		return runErr
	}

	logger.Info(ctx, "Sync completed")

	return nil
}

// newRunner prepares the run and writes a marker to avoid concurrent runs.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	r := &runner{
		downloadedFiles: make(map[string]string, defaultMapCapacity),
		startedAt:       time.Now(),
	}

	if common.IsAnotherRunActive(ctx) {
		return r, errSyncAlreadyRunning
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

	if settings.BundleFolder == "" {
		return r, errBundleFolderRequired
	}

	r.cfg = settings

	r.client, err = common.NewClient(settings.BundleFolder)
	if err != nil {
		return r, err
	}

	r.actor, err = common.DetectActor()
	if err != nil {
		return r, err
	}

	r.openJournal(ctx)

	return r, nil
}

// Run executes the sync workflow for this runner instance:
// 1) Fetch the remote bundle description.
// 2) Compare local files against the published checksums.
// 3) Download files that differ into a temporary folder.
// 4) Replace the local files with checksum validation.
func (r *runner) Run(ctx context.Context) error {
	logger.Info(ctx, "Downloading the bundle description")

	if err := r.fetchDescription(ctx); err != nil {
		return fmt.Errorf("download bundle description: %w", err)
	}

	logger.InfoKV(ctx, "Verifying local files against the bundle",
		"version", r.description.VersionNumber)

	needed, err := r.filesNeedingRefresh()
	if err != nil {
		return fmt.Errorf("verify checksums: %w", err)
	}

	if len(needed) == 0 {
		logger.Info(ctx, "Local files match the bundle, nothing to refresh")
		return nil
	}

	logger.InfoKV(ctx, "Downloading updated files to a temporary folder", "count", len(needed))

	if err = r.downloadFiles(ctx, needed); err != nil {
		return fmt.Errorf("download bundle files: %w", err)
	}

	logger.Info(ctx, "Refreshing local files")

	if err = r.refreshFiles(ctx); err != nil {
		return fmt.Errorf("refresh local files: %w", err)
	}

	logger.Infof(ctx, "Refreshed %d files, run pystrap to install the new requirements",
		r.refreshedCount)

	return nil
}

// openJournal opens the run journal, best effort.
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

// fetchDescription downloads and parses the remote bundle description.
func (r *runner) fetchDescription(ctx context.Context) error {
	contents, err := r.client.FetchFile(ctx, BundleFilename)
	if err != nil {
		return err
	}

	var desc Description
	if err = yaml.Unmarshal(contents, &desc); err != nil {
		return err
	}

	if len(desc.Files) == 0 {
		return errEmptyDescription
	}

	r.description = &desc

	return nil
}

// filesNeedingRefresh returns the bundle files whose local copies differ
// from the published checksums, in a stable order.
func (r *runner) filesNeedingRefresh() ([]string, error) {
	names := make([]string, 0, len(r.description.Files))
	for name := range r.description.Files {
		names = append(names, name)
	}

	sort.Strings(names)

	var needed []string

	for _, name := range names {
		differs, err := r.fileDiffers(name)
		if err != nil {
			return nil, err
		}

		if differs {
			needed = append(needed, name)
		}
	}

	return needed, nil
}

// fileDiffers compares one local file against its published checksum.
// A missing local file always needs a refresh.
func (r *runner) fileDiffers(name string) (bool, error) {
	published, err := r.publishedChecksum(name)
	if err != nil {
		return false, err
	}

	localPath, err := common.ResolveAgainstRoot(name)
	if err != nil {
		return false, err
	}

	if _, err = os.Stat(localPath); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}

		return false, err
	}

	local, err := common.GetFileChecksum(localPath)
	if err != nil {
		return false, err
	}

	return !bytes.Equal(published, local), nil
}

// publishedChecksum retrieves and decodes the bundle checksum for a file.
func (r *runner) publishedChecksum(name string) ([]byte, error) {
	encoded, found := r.description.Files[name]
	if !found {
		return nil, fmt.Errorf("checksum for %s: %w", name, errNoChecksum)
	}

	checksum, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	return checksum, nil
}

// downloadFiles fetches the needed files into a temporary directory.
func (r *runner) downloadFiles(ctx context.Context, needed []string) error {
	temporaryDirectory, err := os.MkdirTemp("", "pystrap-sync-")
	if err != nil {
		return err
	}

	r.temporaryDirectory = temporaryDirectory

	for _, name := range needed {
		contents, err := r.client.FetchFile(ctx, name)
		if err != nil {
			return err
		}

		outputFileName := filepath.Clean(filepath.Join(temporaryDirectory, name))
		if err = os.WriteFile(outputFileName, contents, config.DefaultFilePermissions); err != nil {
			return err
		}

		r.downloadedFiles[name] = outputFileName
		logger.InfoKV(ctx, "Downloaded file", "path", outputFileName)
	}

	return nil
}

// refreshFiles applies downloaded files using go-update with checksum validation.
func (r *runner) refreshFiles(ctx context.Context) error {
	for name, downloadedFileName := range r.downloadedFiles {
		logger.InfoKV(ctx, "Refreshing file", "file", name)

		data, err := os.ReadFile(downloadedFileName)
		if err != nil {
			return err
		}

		checksum, err := r.publishedChecksum(name)
		if err != nil {
			return err
		}

		targetPath, err := common.ResolveAgainstRoot(name)
		if err != nil {
			return err
		}

		if _, err = os.Stat(targetPath); err != nil && os.IsNotExist(err) {
			if _, err = os.Create(targetPath); err != nil {
				return err
			}
		}

		options := goupdate.Options{
			TargetPath: targetPath,
			TargetMode: DefaultFileMode,
			Checksum:   checksum,
			Hash:       common.DefaultChecksumFunction,
		}

		if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
			return err
		}

		oldFileName := targetPath + ".old"
		if _, err = os.Stat(oldFileName); err == nil {
			_ = os.Remove(oldFileName)
		}

		r.refreshedCount++
	}

	return nil
}

// record appends the finished run to the journal, best effort.
func (r *runner) record(ctx context.Context, runErr error) {
	if r.journal == nil {
		return
	}

	finished := &setup.Run{
		Kind:       setup.KindSync,
		Status:     setup.StatusSucceeded,
		Actor:      r.actor,
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
	}

	if runErr != nil {
		finished.Status = setup.StatusFailed
		finished.Err = runErr.Error()
	}

	if manifestPath, err := common.ResolveManifest(r.cfg, ""); err == nil {
		if checksum, err := common.GetFileChecksum(manifestPath); err == nil {
			finished.ManifestChecksum = base64.StdEncoding.EncodeToString(checksum)
		}
	}

	if err := r.journal.Record(ctx, finished); err != nil {
		logger.Warnf(ctx, "Could not record the run: %v", err)
	}
}

// cleanup removes temporary artifacts and the running marker.
func (r *runner) cleanup(ctx context.Context) {
	if r.markerPath != "" {
		if _, err := os.Stat(r.markerPath); err == nil {
			_ = os.Remove(r.markerPath)
		}
	}

	if r.temporaryDirectory != "" {
		if _, err := os.Stat(r.temporaryDirectory); err == nil {
			_ = os.RemoveAll(r.temporaryDirectory)
		}
	}

	if r.journal != nil {
		_ = r.journal.Close()
	}

	logger.Info(ctx, "The sync has been stopped")
}

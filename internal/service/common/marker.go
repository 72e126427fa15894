//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/pystrap/internal/logger"
)

const (
	// MarkerFilename marks that a pystrap run is active right now to avoid parallel execution.
	MarkerFilename = "pystrap-run-marker.bin"

	// markerLifetime is the period after which a stale run marker is ignored.
	markerLifetime = 30 * time.Second
)

// MarkerPath resolves the run marker inside the installer root so every
// invocation of the same installation sees the same marker.
func MarkerPath() string {
	resolved, err := ResolveAgainstRoot(MarkerFilename)
	if err != nil {
		return MarkerFilename
	}

	return resolved
}

// IsAnotherRunActive checks presence of a marker file and reclaims it if it looks stale.
func IsAnotherRunActive(ctx context.Context) bool {
	logger.Info(ctx, "Checking for the presence of a run marker")

	markerPath := MarkerPath()

	fileInfo, err := os.Stat(markerPath)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The run marker is too old, checking for a live process")

		if isAnotherInstanceAlive() {
			return true
		}

		if err = os.Remove(markerPath); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		logger.Info(ctx, "Run marker not found, continuing")
		return false
	}

	logger.Infof(ctx, "Unable to read run marker: %v", err)

	return false
}

// isAnotherInstanceAlive reports whether a different process with our
// executable name is running. Errors are treated as alive so a stale
// marker is never reclaimed while another run may still hold it.
func isAnotherInstanceAlive() bool {
	executable, err := os.Executable()
	if err != nil {
		return true
	}

	processName := filepath.Base(executable)

	processList, err := ps.Processes()
	if err != nil {
		return true
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == processName {
			return true
		}
	}

	return false
}

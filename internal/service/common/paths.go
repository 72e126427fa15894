//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/pystrap/internal/config"
)

// InstallerRoot returns the project directory the installer serves: one level
// above the directory holding the executable. The tool is expected to sit in
// a helper directory next to the project it bootstraps, so the manifest lives
// one level up; resolving against the executable keeps every run independent
// of the caller's working directory.
func InstallerRoot() (string, error) {
	executable, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}

	return filepath.Dir(filepath.Dir(executable)), nil
}

// ResolveManifest returns the absolute path of the requirements manifest.
// A flag override behaves like any CLI path and resolves against the caller's
// directory; the config value and the built-in default resolve against the
// installer root so the result never depends on where the tool was invoked.
func ResolveManifest(cfg *config.Config, override string) (string, error) {
	if override != "" {
		absolute, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve manifest override: %w", err)
		}

		return absolute, nil
	}

	var candidate string
	if cfg != nil {
		candidate = cfg.ManifestPath
	}

	if candidate == "" {
		candidate = config.DefaultManifestFilename
	}

	return ResolveAgainstRoot(candidate)
}

// ResolveAgainstRoot resolves a possibly relative path against the installer root.
func ResolveAgainstRoot(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}

	root, err := InstallerRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, path), nil
}

package sync

import (
	"os"

	"github.com/oshokin/pystrap/internal/version"
)

const (
	// BundleFilename stores the bundle description pushed to installations.
	BundleFilename = "pystrap-bundle.yaml"

	// DefaultFileMode is used when writing refreshed bundle files.
	// Bundle files are manifests and settings, never executables.
	DefaultFileMode os.FileMode = 0o644

	// defaultMapCapacity is the default initial capacity for maps and slices.
	defaultMapCapacity = 16
)

// Description contains metadata about a published bundle.
type Description struct {
	// VersionNumber is the semantic version of this bundle.
	VersionNumber string `yaml:"version"`
	// Files maps filenames to their base64-encoded checksums.
	Files map[string]string `yaml:"files"`
}

// NewDescription produces a Description initialized with defaults.
func NewDescription() *Description {
	return &Description{
		VersionNumber: version.Short(),
		Files:         make(map[string]string, defaultMapCapacity),
	}
}

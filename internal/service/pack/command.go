package pack

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/pystrap/internal/config"
	"github.com/oshokin/pystrap/internal/logger"
	"github.com/oshokin/pystrap/internal/service/common"
	"github.com/oshokin/pystrap/internal/service/sync"
)

// Options contains inputs for the pack entry point.
type Options struct {
	// ConfigPath is an optional path to persist settings (defaults to pystrap-settings.yaml).
	ConfigPath string
	// BundleURL is the URL of the folder where bundle artifacts will be uploaded.
	BundleURL string
}

// packager prepares bundle metadata for distribution.
// It is unexported—callers should use Run, which encapsulates setup and validation.
type packager struct {
	// cfg holds the settings including the bundle folder and file list.
	cfg *config.Config
	// cfgFilename is the path where configuration is saved.
	cfgFilename string
	// desc contains the bundle description with file checksums.
	desc *sync.Description
	// markerPath is the run marker guarding against parallel execution.
	markerPath string
	// descriptionPath is where the description was written.
	descriptionPath string
}

// errPackAlreadyRunning indicates another pystrap run holds the marker.
var errPackAlreadyRunning = errors.New("another pystrap run is already active")

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "pystrap-pack")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	settings.BundleFolder = opts.BundleURL
	if err = config.Validate(settings); err != nil {
		return err
	}

	pkg, err := newPackager(ctx, opts.ConfigPath, settings)
	if err != nil {
		return fmt.Errorf("initialize packager: %w", err)
	}

	defer pkg.cleanup(ctx)

	if err = pkg.Run(ctx); err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packaging completed successfully")

	return nil
}

// newPackager creates a packager instance and persists the bundle settings,
// so later sync runs on this machine know where the bundle lives.
func newPackager(ctx context.Context, configFilename string, settings *config.Config) (*packager, error) {
	if common.IsAnotherRunActive(ctx) {
		return nil, errPackAlreadyRunning
	}

	pkg := &packager{
		cfg:         settings,
		cfgFilename: configFilename,
		desc:        sync.NewDescription(),
		markerPath:  common.MarkerPath(),
	}

	marker, err := os.Create(pkg.markerPath)
	if err != nil {
		return nil, err
	}

	if err = marker.Close(); err != nil {
		return nil, err
	}

	if err = config.Save(configFilename, settings); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}

	return pkg, nil
}

// Run populates and writes the bundle description to disk.
func (p *packager) Run(ctx context.Context) error {
	logger.Info(ctx, "Preparing bundle description")

	if err := p.fillDescription(); err != nil {
		return err
	}

	if err := p.saveDescription(ctx); err != nil {
		return err
	}

	p.printNextSteps(ctx)

	return nil
}

// fillDescription hashes every bundle file into the description.
// The command runs inside the checkout being published, so file names are
// taken relative to the working directory. The sync side resolves the same
// names against its own installer root.
func (p *packager) fillDescription() error {
	for _, name := range p.cfg.BundleFiles {
		cleaned := filepath.Clean(name)

		if _, err := os.Stat(cleaned); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", cleaned, os.ErrNotExist)
		} else if err != nil {
			return fmt.Errorf("stat %s: %w", cleaned, err)
		}

		checksum, err := common.GetFileChecksum(cleaned)
		if err != nil {
			return err
		}

		p.desc.Files[name] = base64.StdEncoding.EncodeToString(checksum)
	}

	return nil
}

// saveDescription writes the description next to the bundle files.
func (p *packager) saveDescription(ctx context.Context) error {
	contents, err := yaml.Marshal(p.desc)
	if err != nil {
		return err
	}

	p.descriptionPath = sync.BundleFilename

	logger.InfoKV(ctx, "Saving bundle description", "path", p.descriptionPath)

	return os.WriteFile(p.descriptionPath, contents, sync.DefaultFileMode)
}

// printNextSteps logs human-readable guidance for publishing the bundle.
func (p *packager) printNextSteps(ctx context.Context) {
	files := make([]string, 0, len(p.desc.Files)+1)
	for fileName := range p.desc.Files {
		files = append(files, fileName)
	}

	files = append(files, sync.BundleFilename)
	sort.Strings(files)

	var builder strings.Builder

	builder.WriteString("You should upload the following files to the folder ")
	builder.WriteString(p.cfg.BundleFolder)
	builder.WriteString(":\n")

	for i, name := range files {
		if i == 0 {
			builder.WriteString(name)
		} else {
			builder.WriteString(",\n")
			builder.WriteString(name)
		}
	}

	builder.WriteString("\n\nOn every machine that should pick up the bundle, run: pystrap sync")

	logger.Info(ctx, builder.String())
}

// cleanup removes the running marker.
func (p *packager) cleanup(ctx context.Context) {
	if p.markerPath != "" {
		if _, err := os.Stat(p.markerPath); err == nil {
			_ = os.Remove(p.markerPath)
		}
	}

	logger.Info(ctx, "The packager has been stopped")
}

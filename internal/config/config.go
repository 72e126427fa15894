package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Credentials describes where the doctor looks for a credentials file and
// which top-level JSON fields it must contain.
type Credentials struct {
	// EnvVars are environment variable names whose values are candidate paths.
	EnvVars []string `yaml:"env_vars"`
	// Paths are candidate file paths checked in order.
	// Relative values resolve against the installer root.
	Paths []string `yaml:"paths"`
	// RequiredFields are JSON keys that must be present with non-empty values.
	RequiredFields []string `yaml:"required_fields"`
}

// IsConfigured reports whether the credentials check has anything to look for.
func (c Credentials) IsConfigured() bool {
	return len(c.EnvVars) > 0 || len(c.Paths) > 0
}

// Config holds settings shared by the pystrap commands.
type Config struct {
	// ManifestPath overrides the requirements manifest location.
	// Relative values resolve against the installer root, never the caller's directory.
	ManifestPath string `yaml:"manifest"`
	// PipCommand is the primary package-manager invocation as an argv prefix.
	PipCommand []string `yaml:"pip_command"`
	// PipFallbackCommand is the secondary invocation tried when the primary fails.
	PipFallbackCommand []string `yaml:"pip_fallback_command"`
	// CommandTimeout bounds every package-manager subprocess.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// EnvFile is the dotenv file read for diagnostics and subprocess environment.
	EnvFile string `yaml:"env_file"`
	// RequiredEnv lists variables the doctor demands.
	// An entry may name alternates separated by '|'; any one of them satisfies it.
	RequiredEnv []string `yaml:"required_env"`
	// Credentials configures the doctor's credentials file check.
	Credentials Credentials `yaml:"credentials"`
	// WorkspaceDirs are directories ensured to exist after a successful install.
	WorkspaceDirs []string `yaml:"workspace_dirs"`
	// BundleFolder is the URL where bootstrap bundle artifacts are hosted.
	BundleFolder string `yaml:"bundle_folder"`
	// BundleFiles lists the files that make up the distributable bundle.
	BundleFiles []string `yaml:"bundle_files"`
	// JournalPath is the SQLite file recording bootstrap and sync runs.
	JournalPath string `yaml:"journal"`
}

const (
	// DefaultConfigFilename is the default filename for pystrap settings.
	DefaultConfigFilename = "pystrap-settings.yaml"

	// DefaultManifestFilename is the requirements manifest consumed by the install step.
	DefaultManifestFilename = "requirements.txt"

	// DefaultEnvFilename is the dotenv file read from the installer root.
	DefaultEnvFilename = ".env"

	// DefaultJournalFilename is the default filename for the run journal database.
	DefaultJournalFilename = "pystrap-journal.db"

	// DefaultCommandTimeout bounds package-manager subprocesses.
	// Installs against a cold cache are slow, so the limit is generous.
	DefaultCommandTimeout = 15 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errPipCommandPair is returned when only one half of the invocation pair is overridden.
	errPipCommandPair = errors.New("pip_command and pip_fallback_command must be overridden together")
)

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	cfg := new(Config)

	//nolint:errcheck // An empty configuration always validates.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and applies defaults.
// An empty path means DefaultConfigFilename; when that default file does not
// exist the built-in defaults are returned, because the installer must work
// in a project that was never configured. An explicitly provided path that
// is missing is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate applies defaults and checks the provided settings for consistency.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.CommandTimeout <= 0 {
		settings.CommandTimeout = DefaultCommandTimeout
	}

	if settings.EnvFile == "" {
		settings.EnvFile = DefaultEnvFilename
	}

	if settings.JournalPath == "" {
		settings.JournalPath = DefaultJournalFilename
	}

	if len(settings.BundleFiles) == 0 {
		settings.BundleFiles = []string{DefaultManifestFilename}
	}

	// The invocation pair is overridden together or not at all.
	if (len(settings.PipCommand) == 0) != (len(settings.PipFallbackCommand) == 0) {
		return errPipCommandPair
	}

	if settings.BundleFolder == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(settings.BundleFolder); err != nil {
		return fmt.Errorf("invalid bundle folder URI: %w", err)
	}

	return nil
}

package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pystrap/internal/config"
	"github.com/oshokin/pystrap/internal/domain/setup"
	"github.com/oshokin/pystrap/internal/repository/journal"
	"github.com/oshokin/pystrap/internal/service/common"
)

// The tests share the run marker location, so they run sequentially on purpose.

// skipWithoutShell skips subprocess tests on platforms without a POSIX shell.
func skipWithoutShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("test scripts require a POSIX shell")
	}
}

// writeScript creates an executable shell script used as a fake package manager.
func writeScript(t *testing.T, dir, name, body string) []string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))

	return []string{path}
}

// writeManifest creates a small requirements manifest and returns its path.
func writeManifest(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, config.DefaultManifestFilename)
	require.NoError(t, os.WriteFile(path, []byte("flask==3.0.3\ngunicorn==22.0.0\n"), 0o600))

	return path
}

// writeSettings persists a test configuration and returns its path.
func writeSettings(t *testing.T, dir string, cfg *config.Config) string {
	t.Helper()

	path := filepath.Join(dir, config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, cfg))

	return path
}

// recordedCalls reads the invocations a fake package manager appended to a file.
func recordedCalls(t *testing.T, path string) string {
	t.Helper()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(contents)
}

// TestRun_Succeeds walks the whole workflow with a healthy fake package manager.
func TestRun_Succeeds(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	callsFile := filepath.Join(dir, "calls.txt")
	workspace := filepath.Join(dir, "uploads")
	journalPath := filepath.Join(dir, "journal.db")

	primary := writeScript(t, dir, "pip-ok", `echo "$@" >> "`+callsFile+`"`)
	fallback := writeScript(t, dir, "pip-unused", "exit 9")

	configPath := writeSettings(t, dir, &config.Config{
		ManifestPath:       writeManifest(t, dir),
		PipCommand:         primary,
		PipFallbackCommand: fallback,
		WorkspaceDirs:      []string{workspace},
		JournalPath:        journalPath,
	})

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))

	calls := recordedCalls(t, callsFile)
	require.Contains(t, calls, "install --upgrade pip")
	require.Contains(t, calls, "install -r "+filepath.Join(dir, config.DefaultManifestFilename))

	info, err := os.Stat(workspace)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	repo, err := journal.NewSQLiteRepository(context.Background(), journalPath)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, repo.Close())
	}()

	runs, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, setup.KindSetup, runs[0].Kind)
	require.True(t, runs[0].Succeeded())
	require.NotEmpty(t, runs[0].ManifestChecksum)
}

// TestRun_MissingManifest aborts before the install step and names the resolved path.
func TestRun_MissingManifest(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	callsFile := filepath.Join(dir, "calls.txt")
	missingManifest := filepath.Join(dir, "absent-requirements.txt")

	primary := writeScript(t, dir, "pip-ok", `echo "$@" >> "`+callsFile+`"`)
	fallback := writeScript(t, dir, "pip-unused", "exit 9")

	configPath := writeSettings(t, dir, &config.Config{
		PipCommand:         primary,
		PipFallbackCommand: fallback,
		JournalPath:        filepath.Join(dir, "journal.db"),
	})

	err := Run(context.Background(), &Options{
		ConfigPath:   configPath,
		ManifestPath: missingManifest,
	})
	require.ErrorIs(t, err, errManifestMissing)
	require.Contains(t, err.Error(), missingManifest)

	calls := recordedCalls(t, callsFile)
	require.Contains(t, calls, "install --upgrade pip")
	require.NotContains(t, calls, "install -r")
}

// TestRun_FallbackInstalls completes the workflow when only the fallback invocation works.
func TestRun_FallbackInstalls(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	callsFile := filepath.Join(dir, "calls.txt")

	primary := writeScript(t, dir, "pip-broken", "exit 127")
	fallback := writeScript(t, dir, "pip-ok", `echo "$@" >> "`+callsFile+`"`)

	configPath := writeSettings(t, dir, &config.Config{
		ManifestPath:       writeManifest(t, dir),
		PipCommand:         primary,
		PipFallbackCommand: fallback,
		JournalPath:        filepath.Join(dir, "journal.db"),
	})

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))

	calls := recordedCalls(t, callsFile)
	require.Contains(t, calls, "install --upgrade pip")
	require.Contains(t, calls, "install -r")
}

// TestRun_BothInvocationsBroken stops with an error when no invocation works.
func TestRun_BothInvocationsBroken(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	primary := writeScript(t, dir, "pip-broken", "exit 127")
	fallback := writeScript(t, dir, "pip-also-broken", "exit 127")

	configPath := writeSettings(t, dir, &config.Config{
		ManifestPath:       writeManifest(t, dir),
		PipCommand:         primary,
		PipFallbackCommand: fallback,
		JournalPath:        filepath.Join(dir, "journal.db"),
	})

	err := Run(context.Background(), &Options{ConfigPath: configPath})
	require.Error(t, err)
	require.Contains(t, err.Error(), "upgrade package manager")
}

// TestRun_Twice_Idempotent verifies that re-running against a satisfied manifest stays green.
func TestRun_Twice_Idempotent(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.db")

	primary := writeScript(t, dir, "pip-ok", "exit 0")
	fallback := writeScript(t, dir, "pip-unused", "exit 9")

	configPath := writeSettings(t, dir, &config.Config{
		ManifestPath:       writeManifest(t, dir),
		PipCommand:         primary,
		PipFallbackCommand: fallback,
		JournalPath:        journalPath,
	})

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))
	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))

	repo, err := journal.NewSQLiteRepository(context.Background(), journalPath)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, repo.Close())
	}()

	runs, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.True(t, runs[0].Succeeded())
	require.True(t, runs[1].Succeeded())
}

// TestRun_PassesEnvFile hands dotenv variables to the package manager subprocess.
func TestRun_PassesEnvFile(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	envOut := filepath.Join(dir, "env-out.txt")
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PYSTRAP_INDEX_TOKEN=sesame\n"), 0o600))

	primary := writeScript(t, dir, "pip-env", `echo "$PYSTRAP_INDEX_TOKEN" >> "`+envOut+`"`)
	fallback := writeScript(t, dir, "pip-unused", "exit 9")

	configPath := writeSettings(t, dir, &config.Config{
		ManifestPath:       writeManifest(t, dir),
		PipCommand:         primary,
		PipFallbackCommand: fallback,
		EnvFile:            envFile,
		JournalPath:        filepath.Join(dir, "journal.db"),
	})

	require.NoError(t, Run(context.Background(), &Options{ConfigPath: configPath}))
	require.Contains(t, recordedCalls(t, envOut), "sesame")
}

// TestRun_RefusesParallelRun rejects a second run while the marker is fresh.
func TestRun_RefusesParallelRun(t *testing.T) {
	markerPath := common.MarkerPath()

	marker, err := os.Create(markerPath)
	require.NoError(t, err)
	require.NoError(t, marker.Close())

	defer func() {
		require.NoError(t, os.Remove(markerPath))
	}()

	err = Run(context.Background(), &Options{})
	require.ErrorIs(t, err, errSetupAlreadyRunning)
}

// TestRun_RecordsFailure keeps failed runs in the journal with their message.
func TestRun_RecordsFailure(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.db")
	missingManifest := filepath.Join(dir, "absent-requirements.txt")

	primary := writeScript(t, dir, "pip-ok", "exit 0")
	fallback := writeScript(t, dir, "pip-unused", "exit 9")

	configPath := writeSettings(t, dir, &config.Config{
		ManifestPath:       missingManifest,
		PipCommand:         primary,
		PipFallbackCommand: fallback,
		JournalPath:        journalPath,
	})

	require.Error(t, Run(context.Background(), &Options{ConfigPath: configPath}))

	repo, err := journal.NewSQLiteRepository(context.Background(), journalPath)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, repo.Close())
	}()

	runs, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, setup.StatusFailed, runs[0].Status)
	require.True(t, strings.Contains(runs[0].Err, missingManifest))
}

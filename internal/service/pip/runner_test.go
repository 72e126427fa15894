package pip

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script used as a fake package manager.
func writeScript(t *testing.T, dir, name, body string) []string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))

	return []string{path}
}

// skipWithoutShell skips subprocess tests on platforms without a POSIX shell.
func skipWithoutShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("test scripts require a POSIX shell")
	}
}

// TestDefaultCommands checks the platform invocation pair.
func TestDefaultCommands(t *testing.T) {
	t.Parallel()

	primary, fallback := DefaultCommands()

	if runtime.GOOS == "windows" {
		require.Equal(t, []string{"pip"}, primary)
		require.Equal(t, []string{"python", "-m", "pip"}, fallback)

		return
	}

	require.Equal(t, []string{"pip3"}, primary)
	require.Equal(t, []string{"python3", "-m", "pip"}, fallback)
}

// TestRunner_PrimarySucceeds verifies the fallback stays untouched when the primary works.
func TestRunner_PrimarySucceeds(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")

	primary := writeScript(t, dir, "pip-ok", `echo "$@" > "`+argsFile+`"`)
	fallback := writeScript(t, dir, "pip-fail", "exit 7")

	runner := NewRunner(WithCommands(primary, fallback))
	require.NoError(t, runner.SelfUpgrade(context.Background()))

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, "install --upgrade pip", strings.TrimSpace(string(recorded)))
}

// TestRunner_FallsBack ensures any primary failure triggers exactly one fallback attempt.
func TestRunner_FallsBack(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")

	primary := writeScript(t, dir, "pip-fail", "exit 3")
	fallback := writeScript(t, dir, "pip-ok", `echo "$@" > "`+argsFile+`"`)

	runner := NewRunner(WithCommands(primary, fallback))
	require.NoError(t, runner.InstallRequirements(context.Background(), "requirements.txt"))

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, "install -r requirements.txt", strings.TrimSpace(string(recorded)))
}

// TestRunner_BothFail asserts the step fails only after both invocations failed.
func TestRunner_BothFail(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	dir := t.TempDir()
	primary := writeScript(t, dir, "pip-fail", "exit 3")
	fallback := writeScript(t, dir, "pip-also-fail", "exit 5")

	runner := NewRunner(WithCommands(primary, fallback))

	err := runner.SelfUpgrade(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "both invocations failed")
}

// TestRunner_Version captures and trims the reported version line.
func TestRunner_Version(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	dir := t.TempDir()
	primary := writeScript(t, dir, "pip-version",
		`echo "pip 24.2 from /usr/lib/python3/dist-packages/pip (python 3.12)"`)
	fallback := writeScript(t, dir, "pip-fail", "exit 1")

	runner := NewRunner(WithCommands(primary, fallback))

	version, err := runner.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pip 24.2 from /usr/lib/python3/dist-packages/pip (python 3.12)", version)
}

// TestRunner_ExtraEnv passes additional variables through to the subprocess.
func TestRunner_ExtraEnv(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	dir := t.TempDir()
	envFile := filepath.Join(dir, "env.txt")

	primary := writeScript(t, dir, "pip-env", `echo "$PYSTRAP_TEST_FLAG" > "`+envFile+`"`)
	fallback := writeScript(t, dir, "pip-fail", "exit 1")

	runner := NewRunner(
		WithCommands(primary, fallback),
		WithExtraEnv(map[string]string{"PYSTRAP_TEST_FLAG": "enabled"}))
	require.NoError(t, runner.SelfUpgrade(context.Background()))

	recorded, err := os.ReadFile(envFile)
	require.NoError(t, err)
	require.Equal(t, "enabled", strings.TrimSpace(string(recorded)))
}

// TestRunner_Timeout kills subprocesses that outlive the configured limit.
func TestRunner_Timeout(t *testing.T) {
	skipWithoutShell(t)
	t.Parallel()

	dir := t.TempDir()
	primary := writeScript(t, dir, "pip-slow", "sleep 5")
	fallback := writeScript(t, dir, "pip-also-slow", "sleep 5")

	runner := NewRunner(
		WithCommands(primary, fallback),
		WithTimeout(50*time.Millisecond))

	start := time.Now()
	err := runner.SelfUpgrade(context.Background())
	require.Error(t, err)
	require.Less(t, time.Since(start), 3*time.Second)
}

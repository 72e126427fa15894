package pip

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/oshokin/pystrap/internal/logger"
)

// Runner executes package-manager commands with a fallback invocation.
type Runner struct {
	// primary is the argv prefix tried first, e.g. ["pip3"].
	primary []string
	// fallback is the argv prefix tried when the primary fails, e.g. ["python3", "-m", "pip"].
	fallback []string
	// timeout bounds a single subprocess; zero means no limit.
	timeout time.Duration
	// extraEnv is appended to the inherited environment.
	extraEnv map[string]string
	// stdout and stderr receive the subprocess output.
	stdout io.Writer
	stderr io.Writer
}

// Option configures optional settings of the runner.
type Option func(*Runner)

// WithCommands overrides the primary and fallback invocations.
func WithCommands(primary, fallback []string) Option {
	return func(r *Runner) {
		if len(primary) > 0 {
			r.primary = primary
		}

		if len(fallback) > 0 {
			r.fallback = fallback
		}
	}
}

// WithTimeout bounds each subprocess invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithExtraEnv passes additional variables to the subprocess environment.
func WithExtraEnv(vars map[string]string) Option {
	return func(r *Runner) {
		r.extraEnv = vars
	}
}

// WithOutput redirects subprocess output away from the process streams.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		if stdout != nil {
			r.stdout = stdout
		}

		if stderr != nil {
			r.stderr = stderr
		}
	}
}

// DefaultCommands returns the platform invocation pair:
// - Linux/macOS: `pip3` with `python3 -m pip` as fallback
// - Windows:     `pip` with `python -m pip` as fallback
func DefaultCommands() (primary, fallback []string) {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return []string{"pip"}, []string{"python", "-m", "pip"}
	}

	return []string{"pip3"}, []string{"python3", "-m", "pip"}
}

// NewRunner creates a runner with platform defaults and applies options.
func NewRunner(opts ...Option) *Runner {
	primary, fallback := DefaultCommands()

	runner := &Runner{
		primary:  primary,
		fallback: fallback,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// SelfUpgrade upgrades the package manager itself.
func (r *Runner) SelfUpgrade(ctx context.Context) error {
	return r.run(ctx, "install", "--upgrade", "pip")
}

// InstallRequirements installs every package pinned in the manifest.
func (r *Runner) InstallRequirements(ctx context.Context, manifestPath string) error {
	return r.run(ctx, "install", "-r", manifestPath)
}

// Version reports the package manager's version line from whichever invocation answers.
func (r *Runner) Version(ctx context.Context) (string, error) {
	output, err := r.capture(ctx, "--version")
	if err != nil {
		return "", err
	}

	version, _, _ := strings.Cut(strings.TrimSpace(output), "\n")

	return version, nil
}

// run executes the primary invocation and retries once with the fallback.
// Any primary failure triggers the fallback, not only a missing binary.
func (r *Runner) run(ctx context.Context, args ...string) error {
	primaryErr := r.execute(ctx, r.primary, args, r.stdout, r.stderr)
	if primaryErr == nil {
		return nil
	}

	logger.Warnf(ctx, "Command %q failed, retrying with %q: %v",
		strings.Join(r.primary, " "),
		strings.Join(r.fallback, " "),
		primaryErr)

	if err := r.execute(ctx, r.fallback, args, r.stdout, r.stderr); err != nil {
		return fmt.Errorf("both invocations failed, last: %w", err)
	}

	return nil
}

// capture is run with the subprocess output collected instead of streamed.
func (r *Runner) capture(ctx context.Context, args ...string) (string, error) {
	var output bytes.Buffer

	if err := r.execute(ctx, r.primary, args, &output, &output); err == nil {
		return output.String(), nil
	}

	logger.Debugf(ctx, "Command %q did not answer, asking %q",
		strings.Join(r.primary, " "),
		strings.Join(r.fallback, " "))

	output.Reset()

	if err := r.execute(ctx, r.fallback, args, &output, &output); err != nil {
		return "", fmt.Errorf("both invocations failed, last: %w", err)
	}

	return output.String(), nil
}

// execute starts one subprocess built from the base argv and the step arguments.
func (r *Runner) execute(ctx context.Context, base, args []string, stdout, stderr io.Writer) error {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	argv := make([]string, 0, len(base)+len(args))
	argv = append(argv, base...)
	argv = append(argv, args...)

	//nolint:gosec // The argv comes from operator settings or built-in defaults.
	cmd := exec.CommandContext(callCtx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = r.environment()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %q: %w", strings.Join(argv, " "), err)
	}

	return nil
}

// environment merges the inherited environment with the extra variables.
// It returns nil when there is nothing to add so the subprocess inherits as usual.
func (r *Runner) environment() []string {
	if len(r.extraEnv) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.extraEnv))
	for key := range r.extraEnv {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	merged := os.Environ()
	for _, key := range keys {
		merged = append(merged, key+"="+r.extraEnv[key])
	}

	return merged
}

// callContext applies the timeout when configured, otherwise derives a cancelable context.
func (r *Runner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, r.timeout)
}

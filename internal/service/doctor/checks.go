package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/oshokin/pystrap/internal/service/common"
	"github.com/oshokin/pystrap/internal/service/pip"
)

// defaultCredentialFields are the keys a service-account JSON must carry
// when the settings do not name their own list.
var defaultCredentialFields = []string{"client_email", "token_uri", "private_key"}

// interpreterCandidates returns the interpreter names probed in order.
func interpreterCandidates() []string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return []string{"python", "python3"}
	}

	return []string{"python3", "python"}
}

// checkInterpreter probes for a Python interpreter on the path.
func (d *doctor) checkInterpreter(ctx context.Context) checkResult {
	result := checkResult{Name: "interpreter"}

	for _, candidate := range interpreterCandidates() {
		probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
		output, err := exec.CommandContext(probeCtx, candidate, "--version").CombinedOutput()

		cancel()

		if err != nil {
			continue
		}

		result.Status = statusOK
		result.Details = candidate + ": " + strings.TrimSpace(string(output))

		return result
	}

	result.Status = statusFailed
	result.Details = fmt.Sprintf("no interpreter answered under %s",
		strings.Join(interpreterCandidates(), " or "))

	return result
}

// checkPackageManager asks the package manager for its version through
// the same invocation pair the setup uses.
func (d *doctor) checkPackageManager(ctx context.Context) checkResult {
	result := checkResult{Name: "package-manager"}

	runner := pip.NewRunner(
		pip.WithCommands(d.cfg.PipCommand, d.cfg.PipFallbackCommand),
		pip.WithTimeout(versionProbeTimeout))

	version, err := runner.Version(ctx)
	if err != nil {
		result.Status = statusFailed
		result.Details = fmt.Sprintf("neither invocation answered: %v", err)

		return result
	}

	result.Status = statusOK
	result.Details = version

	return result
}

// checkManifest verifies the requirements manifest exists and counts its specifiers.
func (d *doctor) checkManifest(_ context.Context) checkResult {
	result := checkResult{Name: "manifest"}

	manifestPath, err := common.ResolveManifest(d.cfg, "")
	if err != nil {
		result.Status = statusFailed
		result.Details = err.Error()

		return result
	}

	contents, err := os.ReadFile(manifestPath)
	if err != nil {
		result.Status = statusFailed
		result.Details = manifestPath + " is not readable"

		return result
	}

	specifiers := countSpecifiers(string(contents))
	if specifiers == 0 {
		result.Status = statusWarning
		result.Details = manifestPath + " contains no package specifiers"

		return result
	}

	result.Status = statusOK
	result.Details = fmt.Sprintf("%s: %d package specifiers", manifestPath, specifiers)

	return result
}

// countSpecifiers counts non-empty, non-comment manifest lines.
func countSpecifiers(contents string) int {
	var count int

	for _, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		count++
	}

	return count
}

// checkRequiredEnv verifies every required variable is set in the process
// environment or the dotenv file. An entry may name alternates separated
// by '|'; any one of them satisfies the requirement.
func (d *doctor) checkRequiredEnv(_ context.Context) checkResult {
	result := checkResult{Name: "environment"}

	if len(d.cfg.RequiredEnv) == 0 {
		result.Status = statusOK
		result.Details = "no required variables configured"

		return result
	}

	var missing []string

	for _, entry := range d.cfg.RequiredEnv {
		if !d.anyAlternateSet(entry) {
			missing = append(missing, entry)
		}
	}

	if len(missing) > 0 {
		result.Status = statusFailed
		result.Details = "missing: " + strings.Join(missing, ", ")

		return result
	}

	result.Status = statusOK
	result.Details = fmt.Sprintf("%d required variables are set", len(d.cfg.RequiredEnv))

	return result
}

// anyAlternateSet reports whether at least one alternate of the entry has a value.
func (d *doctor) anyAlternateSet(entry string) bool {
	for _, name := range strings.Split(entry, "|") {
		if d.lookupEnv(strings.TrimSpace(name)) != "" {
			return true
		}
	}

	return false
}

// checkCredentials looks for a usable credentials JSON in the configured
// candidate locations and validates its required fields.
func (d *doctor) checkCredentials(_ context.Context) checkResult {
	result := checkResult{Name: "credentials"}

	if !d.cfg.Credentials.IsConfigured() {
		result.Status = statusOK
		result.Details = "no credentials check configured"

		return result
	}

	requiredFields := d.cfg.Credentials.RequiredFields
	if len(requiredFields) == 0 {
		requiredFields = defaultCredentialFields
	}

	var (
		tried        []string
		brokenDetail string
	)

	for _, candidate := range d.credentialCandidates() {
		tried = append(tried, candidate)

		reason, usable := validateCredentialsFile(candidate, requiredFields)
		if usable {
			result.Status = statusOK
			result.Details = candidate

			return result
		}

		if reason != "" && brokenDetail == "" {
			brokenDetail = candidate + ": " + reason
		}
	}

	result.Status = statusFailed

	switch {
	case brokenDetail != "":
		result.Details = brokenDetail
	case len(tried) == 0:
		result.Details = "no candidate locations resolved"
	default:
		result.Details = "no credentials file found, tried: " + strings.Join(tried, ", ")
	}

	return result
}

// credentialCandidates builds the ordered, deduplicated list of paths to inspect.
// Environment variables come first, then the configured locations; relative
// values resolve against the installer root.
func (d *doctor) credentialCandidates() []string {
	raw := make([]string, 0, len(d.cfg.Credentials.EnvVars)+len(d.cfg.Credentials.Paths))

	for _, name := range d.cfg.Credentials.EnvVars {
		raw = append(raw, d.lookupEnv(name))
	}

	raw = append(raw, d.cfg.Credentials.Paths...)

	seen := make(map[string]struct{}, len(raw))
	candidates := make([]string, 0, len(raw))

	for _, candidate := range raw {
		if candidate == "" {
			continue
		}

		resolved, err := common.ResolveAgainstRoot(candidate)
		if err != nil {
			continue
		}

		if _, found := seen[resolved]; found {
			continue
		}

		seen[resolved] = struct{}{}
		candidates = append(candidates, resolved)
	}

	return candidates
}

// validateCredentialsFile parses a candidate file and verifies the required fields.
// The second return value is true when the file is usable; the first carries
// the reason when an existing file is not.
func validateCredentialsFile(path string, requiredFields []string) (string, bool) {
	contents, err := os.ReadFile(path)
	if err != nil {
		// Missing candidates are expected, only existing broken files get a reason.
		return "", false
	}

	var data map[string]any
	if err = json.Unmarshal(contents, &data); err != nil {
		return "not a valid JSON document", false
	}

	var missing []string

	for _, field := range requiredFields {
		if !hasField(data, field) {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return "missing fields: " + strings.Join(missing, ", "), false
	}

	return "", true
}

// hasField reports whether a JSON key is present with a usable value.
func hasField(data map[string]any, field string) bool {
	value, ok := data[field]
	if !ok {
		return false
	}

	if text, isString := value.(string); isString {
		return text != ""
	}

	return value != nil
}

// checkWorkspaceDirectories reports missing workspace directories.
// The setup creates them, so their absence is a warning rather than a failure.
func (d *doctor) checkWorkspaceDirectories(_ context.Context) checkResult {
	result := checkResult{Name: "workspace"}

	if len(d.cfg.WorkspaceDirs) == 0 {
		result.Status = statusOK
		result.Details = "no workspace directories configured"

		return result
	}

	var missing []string

	for _, dir := range d.cfg.WorkspaceDirs {
		resolved, err := common.ResolveAgainstRoot(dir)
		if err != nil {
			continue
		}

		if _, err = os.Stat(resolved); err != nil {
			missing = append(missing, resolved)
		}
	}

	if len(missing) > 0 {
		result.Status = statusWarning
		result.Details = "missing, will be created by setup: " + strings.Join(missing, ", ")

		return result
	}

	result.Status = statusOK
	result.Details = fmt.Sprintf("%d directories present", len(d.cfg.WorkspaceDirs))

	return result
}

package setup

import "time"

// Actor identifies who launched a run.
type Actor struct {
	// Hostname is the machine name where the run happened.
	Hostname string
	// Username is the system user who launched it.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// RunKind distinguishes the operations recorded in the journal.
type RunKind string

const (
	// KindSetup is a bootstrap run: upgrade the package manager, install the manifest.
	KindSetup RunKind = "setup"
	// KindSync is a bundle refresh from the shared distribution folder.
	KindSync RunKind = "sync"
)

// RunStatus is the terminal state of a recorded run.
type RunStatus string

const (
	// StatusSucceeded marks a run that completed all of its steps.
	StatusSucceeded RunStatus = "succeeded"
	// StatusFailed marks a run that stopped on a fatal condition.
	StatusFailed RunStatus = "failed"
)

// Run describes a single pystrap execution at a point in time.
type Run struct {
	// Kind tells which operation was executed.
	Kind RunKind
	// Status is the terminal state of the run.
	Status RunStatus
	// Actor is the user who launched the run.
	Actor *Actor
	// PipVersion is the package manager's reported version line, when known.
	PipVersion string
	// ManifestChecksum is the base64 checksum of the manifest that was installed.
	ManifestChecksum string
	// Err carries the failure message for failed runs.
	Err string
	// StartedAt is when the run began.
	StartedAt time.Time
	// FinishedAt is when the run reached its terminal state.
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run completed all of its steps.
func (r *Run) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Clone returns a copy of the run to avoid leaking internal references.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}

	cloned := *r
	cloned.Actor = r.Actor.Clone()

	return &cloned
}

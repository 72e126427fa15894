package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pystrap/internal/domain/setup"
)

// newTestRepository opens a journal in a temporary directory and closes it with the test.
func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, repo.Close())
	})

	return repo
}

// sampleRun builds a finished run for tests.
func sampleRun(kind setup.RunKind, status setup.RunStatus, startedAt time.Time) *setup.Run {
	return &setup.Run{
		Kind:   kind,
		Status: status,
		Actor: &setup.Actor{
			Hostname: "classroom-07",
			Username: "o.shokin",
		},
		PipVersion:       "pip 24.2",
		ManifestChecksum: "abc123",
		StartedAt:        startedAt,
		FinishedAt:       startedAt.Add(42 * time.Second),
	}
}

// TestLastSuccessful_NotFound verifies the sentinel for an empty journal.
func TestLastSuccessful_NotFound(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)

	run, err := repo.LastSuccessful(context.Background(), setup.KindSetup)
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, run)
}

// TestRecord_Roundtrip ensures Record followed by Recent returns an equal run.
func TestRecord_Roundtrip(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)

	startedAt := time.Now().UTC().Truncate(time.Second)
	want := sampleRun(setup.KindSetup, setup.StatusSucceeded, startedAt)
	require.NoError(t, repo.Record(context.Background(), want))

	runs, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	require.Equal(t, want.Kind, got.Kind)
	require.Equal(t, want.Status, got.Status)
	require.Equal(t, want.Actor, got.Actor)
	require.Equal(t, want.PipVersion, got.PipVersion)
	require.Equal(t, want.ManifestChecksum, got.ManifestChecksum)
	require.Equal(t, want.StartedAt.Unix(), got.StartedAt.Unix())
	require.Equal(t, want.FinishedAt.Unix(), got.FinishedAt.Unix())
}

// TestRecord_NilRun asserts that nil runs are rejected.
func TestRecord_NilRun(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	require.Error(t, repo.Record(context.Background(), nil))
}

// TestRecent_NewestFirst checks ordering and the limit.
func TestRecent_NewestFirst(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	startedAt := time.Now().UTC().Truncate(time.Second)

	first := sampleRun(setup.KindSetup, setup.StatusFailed, startedAt)
	first.Err = "manifest missing"
	second := sampleRun(setup.KindSync, setup.StatusSucceeded, startedAt.Add(time.Minute))

	require.NoError(t, repo.Record(context.Background(), first))
	require.NoError(t, repo.Record(context.Background(), second))

	runs, err := repo.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, setup.KindSync, runs[0].Kind)

	runs, err = repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, setup.KindSync, runs[0].Kind)
	require.Equal(t, setup.KindSetup, runs[1].Kind)
	require.Equal(t, "manifest missing", runs[1].Err)
}

// TestLastSuccessful_FiltersKindAndStatus ensures failed and foreign-kind runs are skipped.
func TestLastSuccessful_FiltersKindAndStatus(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	startedAt := time.Now().UTC().Truncate(time.Second)

	oldSetup := sampleRun(setup.KindSetup, setup.StatusSucceeded, startedAt)
	oldSetup.ManifestChecksum = "old-checksum"
	failedSetup := sampleRun(setup.KindSetup, setup.StatusFailed, startedAt.Add(time.Minute))
	syncRun := sampleRun(setup.KindSync, setup.StatusSucceeded, startedAt.Add(2*time.Minute))

	for _, run := range []*setup.Run{oldSetup, failedSetup, syncRun} {
		require.NoError(t, repo.Record(context.Background(), run))
	}

	got, err := repo.LastSuccessful(context.Background(), setup.KindSetup)
	require.NoError(t, err)
	require.Equal(t, "old-checksum", got.ManifestChecksum)
}

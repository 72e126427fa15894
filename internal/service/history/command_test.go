package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pystrap/internal/config"
	"github.com/oshokin/pystrap/internal/domain/setup"
	"github.com/oshokin/pystrap/internal/repository/journal"
)

// writeSettings persists a configuration pointing the journal at an absolute path.
func writeSettings(t *testing.T, journalPath string) string {
	t.Helper()

	cfg := config.Default()
	cfg.JournalPath = journalPath

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.Save(path, cfg))

	return path
}

// TestFormatRuns checks the listing carries the facts an operator looks for.
func TestFormatRuns(t *testing.T) {
	t.Parallel()

	startedAt := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)

	runs := []*setup.Run{
		{
			Kind:   setup.KindSetup,
			Status: setup.StatusSucceeded,
			Actor: &setup.Actor{
				Hostname: "classroom-07",
				Username: "o.shokin",
			},
			StartedAt:  startedAt,
			FinishedAt: startedAt.Add(42 * time.Second),
		},
		{
			Kind:       setup.KindSync,
			Status:     setup.StatusFailed,
			Err:        "fetch bundle description: connection refused",
			StartedAt:  startedAt.Add(-time.Hour),
			FinishedAt: startedAt.Add(-time.Hour).Add(time.Second),
		},
	}

	listing := formatRuns(runs)

	require.Contains(t, listing, "2026-03-14 09:26:53 UTC")
	require.Contains(t, listing, "setup  succeeded  in 42s")
	require.Contains(t, listing, "by o.shokin@classroom-07")
	require.Contains(t, listing, "sync  failed")
	require.Contains(t, listing, "connection refused")
}

// TestRun_EmptyJournal ensures a fresh installation lists nothing without creating a journal.
func TestRun_EmptyJournal(t *testing.T) {
	t.Parallel()

	journalPath := filepath.Join(t.TempDir(), "journal.db")
	settingsPath := writeSettings(t, journalPath)

	err := Run(context.Background(), &Options{ConfigPath: settingsPath})
	require.NoError(t, err)
	require.NoFileExists(t, journalPath)
}

// TestRun_ListsRecordedRuns exercises the full path over a populated journal.
func TestRun_ListsRecordedRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	journalPath := filepath.Join(t.TempDir(), "journal.db")

	repo, err := journal.NewSQLiteRepository(ctx, journalPath)
	require.NoError(t, err)

	startedAt := time.Now().Add(-time.Minute)
	require.NoError(t, repo.Record(ctx, &setup.Run{
		Kind:       setup.KindSetup,
		Status:     setup.StatusSucceeded,
		Actor:      &setup.Actor{Hostname: "classroom-07", Username: "o.shokin"},
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(3 * time.Second),
	}))
	require.NoError(t, repo.Close())

	settingsPath := writeSettings(t, journalPath)

	err = Run(ctx, &Options{ConfigPath: settingsPath, Limit: 5})
	require.NoError(t, err)
}

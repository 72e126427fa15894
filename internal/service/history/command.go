package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oshokin/pystrap/internal/config"
	"github.com/oshokin/pystrap/internal/domain/setup"
	"github.com/oshokin/pystrap/internal/logger"
	"github.com/oshokin/pystrap/internal/repository/journal"
	"github.com/oshokin/pystrap/internal/service/common"
)

const (
	// DefaultLimit bounds the listing when no explicit limit is requested.
	DefaultLimit = 10

	// timestampLayout keeps the listing compact and sortable.
	timestampLayout = "2006-01-02 15:04:05 MST"
)

// Options contains configuration parameters for the history listing.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// Limit caps how many runs are shown, newest first.
	Limit int
}

// Run prints the most recent journal entries, newest first.
// A missing journal is not an error, it only means nothing ran yet.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "pystrap-history")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	journalPath, err := common.ResolveAgainstRoot(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("resolve journal location: %w", err)
	}

	// Opening the repository would create an empty journal file,
	// so a listing on a fresh installation checks for it first.
	if _, err = os.Stat(journalPath); errors.Is(err, os.ErrNotExist) {
		logger.Info(ctx, "The journal is empty, run pystrap to record a setup")

		return nil
	}

	repo, err := journal.NewSQLiteRepository(ctx, journalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Errorf(ctx, "Failed to close journal: %v", closeErr)
		}
	}()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	runs, err := repo.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	if len(runs) == 0 {
		logger.Info(ctx, "The journal is empty, run pystrap to record a setup")

		return nil
	}

	logger.Info(ctx, formatRuns(runs))

	return nil
}

// formatRuns renders the runs as a single multi-line message.
func formatRuns(runs []*setup.Run) string {
	var builder strings.Builder

	builder.WriteString("Recent runs, newest first:")

	for _, run := range runs {
		builder.WriteString("\n")
		builder.WriteString(run.StartedAt.UTC().Format(timestampLayout))
		builder.WriteString("  ")
		builder.WriteString(string(run.Kind))
		builder.WriteString("  ")
		builder.WriteString(string(run.Status))
		builder.WriteString("  in ")
		builder.WriteString(run.Duration().Round(time.Millisecond).String())

		if run.Actor != nil {
			builder.WriteString("  by ")
			builder.WriteString(run.Actor.Username)
			builder.WriteString("@")
			builder.WriteString(run.Actor.Hostname)
		}

		if run.Err != "" {
			builder.WriteString(": ")
			builder.WriteString(run.Err)
		}
	}

	return builder.String()
}

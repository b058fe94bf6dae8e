// Package history keeps the reports of past import runs.
//
// Reports are stored whole as JSON next to a few summary columns used for
// listing. Three backends exist: Postgres (shared with the web service's
// database), SQLite (a local file, the default) and an in-memory ring used
// when history is disabled.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Store persists run reports.
type Store interface {
	Save(ctx context.Context, report *core.Report) error
	Get(ctx context.Context, runID string) (*core.Report, error)
	List(ctx context.Context, opts ListOptions) ([]Summary, error)

	// Prune deletes runs started before cutoff and returns how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// ListOptions filters List. Runs are returned newest first.
type ListOptions struct {
	Feed  string
	Limit int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// Summary is the listing view of a run.
type Summary struct {
	RunID     string        `json:"runId"`
	Feed      string        `json:"feed"`
	Kind      core.Kind     `json:"kind"`
	DryRun    bool          `json:"dryRun"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`
	Created   int           `json:"created"`
	Patched   int           `json:"patched"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Conflicts int           `json:"conflicts"`
	Error     string        `json:"error,omitempty"`
}

// Summarize extracts the summary of a report.
func Summarize(r *core.Report) Summary {
	return Summary{
		RunID:     r.RunID,
		Feed:      r.Feed,
		Kind:      r.Kind,
		DryRun:    r.DryRun,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		Created:   r.Created,
		Patched:   r.Patched,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Conflicts: r.Conflicts,
		Error:     r.Error,
	}
}

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/fleetsync/internal/core"

	// Pure Go SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	feed        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	dry_run     INTEGER NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	created     INTEGER NOT NULL,
	patched     INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	conflicts   INTEGER NOT NULL,
	error       TEXT NOT NULL,
	report      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

// SQLite keeps runs in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. The special
// path ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Save(ctx context.Context, report *core.Report) error {
	if report == nil || report.RunID == "" {
		return errors.New("save run: report has no run id")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", report.RunID, err)
	}
	sum := Summarize(report)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, feed, kind, dry_run, started_at, duration_ns,
			created, patched, skipped, failed, conflicts, error, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			duration_ns = excluded.duration_ns,
			created = excluded.created,
			patched = excluded.patched,
			skipped = excluded.skipped,
			failed = excluded.failed,
			conflicts = excluded.conflicts,
			error = excluded.error,
			report = excluded.report`,
		sum.RunID, sum.Feed, string(sum.Kind), sum.DryRun, sum.StartedAt.UTC().UnixNano(), int64(sum.Duration),
		sum.Created, sum.Patched, sum.Skipped, sum.Failed, sum.Conflicts, sum.Error, string(payload))
	if err != nil {
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, runID string) (*core.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	var report core.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &report, nil
}

func (s *SQLite) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, feed, kind, dry_run, started_at, duration_ns,
			created, patched, skipped, failed, conflicts, error
		FROM runs
		WHERE ? = '' OR feed = ?
		ORDER BY started_at DESC, run_id
		LIMIT ?`, opts.Feed, opts.Feed, opts.limit())
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var (
			sum      Summary
			kind     string
			started  int64
			duration int64
		)
		if err := rows.Scan(&sum.RunID, &sum.Feed, &kind, &sum.DryRun, &started, &duration,
			&sum.Created, &sum.Patched, &sum.Skipped, &sum.Failed, &sum.Conflicts, &sum.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.Kind = core.Kind(kind)
		sum.StartedAt = time.Unix(0, started).UTC()
		sum.Duration = time.Duration(duration)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func (s *SQLite) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

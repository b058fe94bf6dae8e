package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fleetsync_runs (
	run_id      TEXT PRIMARY KEY,
	feed        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	dry_run     BOOLEAN NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ns BIGINT NOT NULL,
	created     INTEGER NOT NULL,
	patched     INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	conflicts   INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	report      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS fleetsync_runs_started_at ON fleetsync_runs (started_at);
`

// Postgres keeps runs in the fleetsync_runs table.
type Postgres struct {
	db DBTX
}

// NewPostgres wraps db. Call Migrate once before use.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the runs table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, report *core.Report) error {
	if report == nil || report.RunID == "" {
		return errors.New("save run: report has no run id")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", report.RunID, err)
	}
	sum := Summarize(report)
	_, err = p.db.Exec(ctx, `
		INSERT INTO fleetsync_runs (run_id, feed, kind, dry_run, started_at, duration_ns,
			created, patched, skipped, failed, conflicts, error, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO UPDATE SET
			duration_ns = EXCLUDED.duration_ns,
			created = EXCLUDED.created,
			patched = EXCLUDED.patched,
			skipped = EXCLUDED.skipped,
			failed = EXCLUDED.failed,
			conflicts = EXCLUDED.conflicts,
			error = EXCLUDED.error,
			report = EXCLUDED.report`,
		sum.RunID, sum.Feed, string(sum.Kind), sum.DryRun, sum.StartedAt, int64(sum.Duration),
		sum.Created, sum.Patched, sum.Skipped, sum.Failed, sum.Conflicts, sum.Error, payload)
	if err != nil {
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, runID string) (*core.Report, error) {
	var payload []byte
	err := p.db.QueryRow(ctx, `SELECT report FROM fleetsync_runs WHERE run_id = $1`, runID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	var report core.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &report, nil
}

func (p *Postgres) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	rows, err := p.db.Query(ctx, `
		SELECT run_id, feed, kind, dry_run, started_at, duration_ns,
			created, patched, skipped, failed, conflicts, error
		FROM fleetsync_runs
		WHERE $1 = '' OR feed = $1
		ORDER BY started_at DESC, run_id
		LIMIT $2`, opts.Feed, opts.limit())
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum      Summary
			kind     string
			duration int64
		)
		if err := rows.Scan(&sum.RunID, &sum.Feed, &kind, &sum.DryRun, &sum.StartedAt, &duration,
			&sum.Created, &sum.Patched, &sum.Skipped, &sum.Failed, &sum.Conflicts, &sum.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.Kind = core.Kind(kind)
		sum.Duration = time.Duration(duration)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func (p *Postgres) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM fleetsync_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close is a no-op; the pool belongs to the caller.
func (p *Postgres) Close() error { return nil }

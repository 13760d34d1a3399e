package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/weatherflows/weatherflows/internal/condition"
	"github.com/weatherflows/weatherflows/internal/workflow"
)

// DB is the subset of *pgxpool.Pool used by PostgresRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Schema creates the run history table. Migrate applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	id          UUID PRIMARY KEY,
	workflow    TEXT NOT NULL,
	city        TEXT NOT NULL,
	trigger     TEXT NOT NULL,
	status      TEXT NOT NULL,
	outcome     TEXT,
	reason      TEXT,
	attempts    INTEGER NOT NULL,
	notified    BOOLEAN NOT NULL,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS workflow_runs_workflow_started_idx
	ON workflow_runs (workflow, started_at DESC);
`

const selectColumns = `
	id, workflow, city, trigger, status, outcome, reason,
	attempts, notified, error, started_at, finished_at
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a repository backed by db, usually a *pgxpool.Pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the schema if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrating workflow_runs: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Save(ctx context.Context, run *workflow.Run) error {
	query := `
		INSERT INTO workflow_runs (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			outcome = EXCLUDED.outcome,
			reason = EXCLUDED.reason,
			attempts = EXCLUDED.attempts,
			notified = EXCLUDED.notified,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`

	var outcome, reason *string
	if run.Decision != nil {
		o := run.Decision.Outcome.String()
		outcome = &o
		reason = &run.Decision.Reason
	}
	var runErr *string
	if run.Error != "" {
		runErr = &run.Error
	}

	_, err := r.db.Exec(ctx, query,
		run.ID,
		run.Workflow,
		run.City,
		string(run.Trigger),
		string(run.Status),
		outcome,
		reason,
		run.Attempts,
		run.Notified,
		runErr,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*workflow.Run, error) {
	query := `SELECT ` + selectColumns + ` FROM workflow_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]*workflow.Run, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM workflow_runs
		WHERE ($1 = '' OR workflow = $1)
		ORDER BY started_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, filter.Workflow, filter.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanRun(row pgx.Row) (*workflow.Run, error) {
	var (
		run                     workflow.Run
		trigger, status         string
		outcome, reason, runErr *string
		startedAt, finishedAt   time.Time
	)

	err := row.Scan(
		&run.ID,
		&run.Workflow,
		&run.City,
		&trigger,
		&status,
		&outcome,
		&reason,
		&run.Attempts,
		&run.Notified,
		&runErr,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Trigger = workflow.Trigger(trigger)
	run.Status = workflow.Status(status)
	run.StartedAt = startedAt.UTC()
	run.FinishedAt = finishedAt.UTC()
	if runErr != nil {
		run.Error = *runErr
	}
	if outcome != nil {
		o, err := condition.ParseOutcome(*outcome)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", run.ID, err)
		}
		run.Decision = &condition.Decision{Outcome: o}
		if reason != nil {
			run.Decision.Reason = *reason
		}
	}
	return &run, nil
}

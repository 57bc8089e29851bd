package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	pgSchema = `
        CREATE TABLE IF NOT EXISTS upload_outcomes (
            id               UUID PRIMARY KEY,
            job_id           TEXT NOT NULL,
            session          TEXT NOT NULL DEFAULT '',
            final_status     TEXT NOT NULL,
            published_url    TEXT NOT NULL DEFAULT '',
            error_kind       TEXT NOT NULL DEFAULT '',
            failed_stage     TEXT NOT NULL DEFAULT '',
            error_message    TEXT NOT NULL DEFAULT '',
            degraded_success BOOLEAN NOT NULL DEFAULT FALSE,
            artifacts        TEXT[] NOT NULL DEFAULT '{}',
            started_at       TIMESTAMPTZ NOT NULL,
            finished_at      TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS upload_outcomes_job_idx ON upload_outcomes (job_id, finished_at);
        CREATE TABLE IF NOT EXISTS stage_results (
            outcome_id     UUID NOT NULL REFERENCES upload_outcomes (id) ON DELETE CASCADE,
            seq            INTEGER NOT NULL,
            stage          TEXT NOT NULL,
            status         TEXT NOT NULL,
            attempts       INTEGER NOT NULL,
            elapsed_ms     BIGINT NOT NULL,
            strategy       INTEGER NOT NULL,
            detail         TEXT NOT NULL,
            screenshot_ref TEXT NOT NULL,
            PRIMARY KEY (outcome_id, seq)
        );
    `

	pgInsertOutcome = `
        INSERT INTO upload_outcomes (id, job_id, session, final_status, published_url, error_kind,
            failed_stage, error_message, degraded_success, artifacts, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
    `

	pgSelectOutcomes = `
        SELECT id, job_id, session, final_status, published_url, error_kind, failed_stage,
            error_message, degraded_success, artifacts, started_at, finished_at
        FROM upload_outcomes
        WHERE job_id = $1
        ORDER BY finished_at ASC;
    `

	pgSelectStages = `
        SELECT stage, status, attempts, elapsed_ms, strategy, detail, screenshot_ref
        FROM stage_results
        WHERE outcome_id = $1
        ORDER BY seq ASC;
    `
)

var stageColumns = []string{"outcome_id", "seq", "stage", "status", "attempts", "elapsed_ms", "strategy", "detail", "screenshot_ref"}

// Store persists outcomes to PostgreSQL. It implements reporting.Reporter.
type Store struct {
	pool  DBPool
	log   *zap.Logger
	newID func() string
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:  pool,
		log:   logger.Named("store"),
		newID: uuid.NewString,
	}, nil
}

// Migrate creates the outcome tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Report inserts the outcome and its stage trace in one transaction. Each
// call is a new record; the same job may be reported many times.
func (s *Store) Report(ctx context.Context, o schemas.UploadOutcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	id := s.newID()
	artifacts := o.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}
	if _, err := tx.Exec(ctx, pgInsertOutcome,
		id, o.JobID, o.Session, string(o.FinalStatus), o.PublishedURL, string(o.ErrorKind),
		string(o.FailedStage), o.ErrorMessage, o.DegradedSuccess, artifacts,
		o.StartedAt.UTC(), o.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert outcome %s: %w", o.JobID, err)
	}

	if len(o.StageTrace) > 0 {
		rows := make([][]interface{}, len(o.StageTrace))
		for i, r := range o.StageTrace {
			rows[i] = []interface{}{
				id, i, string(r.Stage), string(r.Status), r.Attempts, r.ElapsedMs,
				r.Strategy, r.Detail, r.ScreenshotRef,
			}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"stage_results"}, stageColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy stage results: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("mismatch in copied stage results: expected %d, got %d", len(rows), n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// OutcomesByJob returns every recorded outcome of a job, oldest first.
func (s *Store) OutcomesByJob(ctx context.Context, jobID string) ([]schemas.UploadOutcome, error) {
	rows, err := s.pool.Query(ctx, pgSelectOutcomes, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var ids []string
	var outcomes []schemas.UploadOutcome
	for rows.Next() {
		var (
			o                       schemas.UploadOutcome
			id, status, kind, stage string
		)
		if err := rows.Scan(&id, &o.JobID, &o.Session, &status, &o.PublishedURL, &kind, &stage,
			&o.ErrorMessage, &o.DegradedSuccess, &o.Artifacts, &o.StartedAt, &o.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		o.FinalStatus = schemas.FinalStatus(status)
		o.ErrorKind = schemas.ErrorKind(kind)
		o.FailedStage = schemas.Stage(stage)
		ids = append(ids, id)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	for i, id := range ids {
		trace, err := s.stages(ctx, id)
		if err != nil {
			return nil, err
		}
		outcomes[i].StageTrace = trace
	}
	return outcomes, nil
}

func (s *Store) stages(ctx context.Context, outcomeID string) ([]schemas.StageResult, error) {
	rows, err := s.pool.Query(ctx, pgSelectStages, outcomeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage results: %w", err)
	}
	defer rows.Close()

	trace := []schemas.StageResult{}
	for rows.Next() {
		var r schemas.StageResult
		var stage, status string
		if err := rows.Scan(&stage, &status, &r.Attempts, &r.ElapsedMs, &r.Strategy, &r.Detail, &r.ScreenshotRef); err != nil {
			return nil, fmt.Errorf("failed to scan stage row: %w", err)
		}
		r.Stage = schemas.Stage(stage)
		r.Status = schemas.StageStatus(status)
		trace = append(trace, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return trace, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

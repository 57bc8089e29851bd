package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

const sqliteSchema = `
    CREATE TABLE IF NOT EXISTS upload_outcomes (
        id               TEXT PRIMARY KEY,
        job_id           TEXT NOT NULL,
        session          TEXT NOT NULL DEFAULT '',
        final_status     TEXT NOT NULL,
        published_url    TEXT NOT NULL DEFAULT '',
        error_kind       TEXT NOT NULL DEFAULT '',
        failed_stage     TEXT NOT NULL DEFAULT '',
        error_message    TEXT NOT NULL DEFAULT '',
        degraded_success INTEGER NOT NULL DEFAULT 0,
        artifacts        TEXT NOT NULL DEFAULT '[]',
        started_at       TEXT NOT NULL,
        finished_at      TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS upload_outcomes_job_idx ON upload_outcomes (job_id, finished_at);
    CREATE TABLE IF NOT EXISTS stage_results (
        outcome_id     TEXT NOT NULL REFERENCES upload_outcomes (id) ON DELETE CASCADE,
        seq            INTEGER NOT NULL,
        stage          TEXT NOT NULL,
        status         TEXT NOT NULL,
        attempts       INTEGER NOT NULL,
        elapsed_ms     INTEGER NOT NULL,
        strategy       INTEGER NOT NULL,
        detail         TEXT NOT NULL,
        screenshot_ref TEXT NOT NULL,
        PRIMARY KEY (outcome_id, seq)
    );
`

// SQLite timestamps are stored as sortable UTC text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists outcomes to a local SQLite file. It implements
// reporting.Reporter.
type SQLiteStore struct {
	db    *sql.DB
	log   *zap.Logger
	newID func() string
}

// OpenSQLite opens (creating if needed) the database at path and migrates
// it. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand sqlite path %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite dir: %w", err)
		}
		dsn = "file:" + expanded + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer; an in-memory database also lives only as long as its
	// single connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, log: logger.Named("store.sqlite"), newID: uuid.NewString}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return s, nil
}

// Report inserts the outcome and its stage trace in one transaction.
func (s *SQLiteStore) Report(ctx context.Context, o schemas.UploadOutcome) error {
	artifacts := o.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}
	encoded, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("failed to encode artifacts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	id := s.newID()
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO upload_outcomes (id, job_id, session, final_status, published_url, error_kind,
            failed_stage, error_message, degraded_success, artifacts, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, o.JobID, o.Session, string(o.FinalStatus), o.PublishedURL, string(o.ErrorKind),
		string(o.FailedStage), o.ErrorMessage, o.DegradedSuccess, string(encoded),
		o.StartedAt.UTC().Format(sqliteTime), o.FinishedAt.UTC().Format(sqliteTime),
	); err != nil {
		return fmt.Errorf("failed to insert outcome %s: %w", o.JobID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO stage_results (outcome_id, seq, stage, status, attempts, elapsed_ms, strategy, detail, screenshot_ref)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare stage insert: %w", err)
	}
	defer stmt.Close()
	for i, r := range o.StageTrace {
		if _, err := stmt.ExecContext(ctx, id, i, string(r.Stage), string(r.Status), r.Attempts,
			r.ElapsedMs, r.Strategy, r.Detail, r.ScreenshotRef); err != nil {
			return fmt.Errorf("failed to insert stage result %s: %w", r.Stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// OutcomesByJob returns every recorded outcome of a job, oldest first.
func (s *SQLiteStore) OutcomesByJob(ctx context.Context, jobID string) ([]schemas.UploadOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, job_id, session, final_status, published_url, error_kind, failed_stage,
            error_message, degraded_success, artifacts, started_at, finished_at
        FROM upload_outcomes
        WHERE job_id = ?
        ORDER BY finished_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}

	var ids []string
	var outcomes []schemas.UploadOutcome
	for rows.Next() {
		var (
			o                                         schemas.UploadOutcome
			id, status, kind, stage, arts, start, end string
		)
		if err := rows.Scan(&id, &o.JobID, &o.Session, &status, &o.PublishedURL, &kind, &stage,
			&o.ErrorMessage, &o.DegradedSuccess, &arts, &start, &end); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		o.FinalStatus = schemas.FinalStatus(status)
		o.ErrorKind = schemas.ErrorKind(kind)
		o.FailedStage = schemas.Stage(stage)
		if err := json.Unmarshal([]byte(arts), &o.Artifacts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode artifacts of %s: %w", id, err)
		}
		if len(o.Artifacts) == 0 {
			o.Artifacts = nil
		}
		if o.StartedAt, err = time.Parse(sqliteTime, start); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse started_at of %s: %w", id, err)
		}
		if o.FinishedAt, err = time.Parse(sqliteTime, end); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse finished_at of %s: %w", id, err)
		}
		ids = append(ids, id)
		outcomes = append(outcomes, o)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	// The single connection is free again only once rows is closed.
	for i, id := range ids {
		trace, err := s.stages(ctx, id)
		if err != nil {
			return nil, err
		}
		outcomes[i].StageTrace = trace
	}
	return outcomes, nil
}

func (s *SQLiteStore) stages(ctx context.Context, outcomeID string) ([]schemas.StageResult, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT stage, status, attempts, elapsed_ms, strategy, detail, screenshot_ref
        FROM stage_results
        WHERE outcome_id = ?
        ORDER BY seq ASC`, outcomeID)
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

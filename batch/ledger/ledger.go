// Package ledger records batch runs and their per-job outcomes in a SQLite
// database, so repeated sweeps on one host can be audited after the fact.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/myovent/simbatch/batch/dispatch"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	manifest TEXT NOT NULL,
	executable TEXT NOT NULL,
	concurrency INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	failed INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS job_outcomes (
	run_id TEXT NOT NULL REFERENCES runs(id),
	sequence INTEGER NOT NULL,
	model_path TEXT NOT NULL,
	results_path TEXT NOT NULL,
	state TEXT NOT NULL,
	failure TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	error TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, sequence)
);`

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one recorded batch execution.
type Run struct {
	ID          string
	Manifest    string
	Executable  string
	Concurrency int
	StartedAt   time.Time
	FinishedAt  time.Time
	Succeeded   int
	Failed      int
}

// JobRecord is one job's stored outcome.
type JobRecord struct {
	Sequence    int
	ModelPath   string
	ResultsPath string
	State       string
	Failure     string
	ExitCode    int
	Error       string
	Duration    time.Duration
}

// Store is a SQLite-backed ledger.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path, creating parent directories.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RecordRun stores a finished batch and all of its outcomes in a single
// transaction and returns the new run ID.
func (s *Store) RecordRun(ctx context.Context, run Run, outcomes []dispatch.Outcome) (id string, retErr error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	sum := dispatch.Summarize(outcomes)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, manifest, executable, concurrency, started_at, finished_at, succeeded, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Manifest, run.Executable, run.Concurrency,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		sum.Succeeded, sum.Failed,
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	for _, o := range outcomes {
		msg := ""
		if o.Err != nil {
			msg = o.Err.Error()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_outcomes (run_id, sequence, model_path, results_path, state, failure, exit_code, error, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, o.Job.Sequence, o.Job.ModelPath, o.Job.ResultsPath,
			o.State.String(), o.Failure.String(), o.ExitCode, msg, o.Duration().Milliseconds(),
		); err != nil {
			return "", fmt.Errorf("insert job %d: %w", o.Job.Sequence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return run.ID, nil
}

// Runs lists recorded runs, most recent first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, manifest, executable, concurrency, started_at, finished_at, succeeded, failed
		 FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Manifest, &r.Executable, &r.Concurrency,
			&started, &finished, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("run %s finished_at: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcomes returns the job records of one run in sequence order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]JobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, model_path, results_path, state, failure, exit_code, error, duration_ms
		 FROM job_outcomes WHERE run_id = ? ORDER BY sequence`, runID)
	if err != nil {
		return nil, fmt.Errorf("select outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var recs []JobRecord
	for rows.Next() {
		var r JobRecord
		var ms int64
		if err := rows.Scan(&r.Sequence, &r.ModelPath, &r.ResultsPath, &r.State,
			&r.Failure, &r.ExitCode, &r.Error, &ms); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

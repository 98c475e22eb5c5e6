package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRunNotFound is returned when no run has the requested id.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousRun is returned when an id prefix matches several runs.
	ErrAmbiguousRun = errors.New("run id prefix is ambiguous")
)

// StartRun inserts a running run and returns it with its id and start time
// filled in.
func (s *Store) StartRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = RunRunning
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, model_root, vocoder, train_length, status, planned, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ModelRoot, run.Vocoder, run.TrainLength, run.Status, run.Totals.Planned,
		formatTime(run.StartedAt),
	); err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final status and totals of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, totals Totals, errMsg string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, planned = ?, completed = ?, skipped = ?, failed = ?,
             error_message = ?, finished_at = ?
         WHERE id = ?`,
		status, totals.Planned, totals.Completed, totals.Skipped, totals.Failed,
		nullable(errMsg), formatTime(time.Now()), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// ResetInterrupted marks runs of modelRoot still flagged running as
// interrupted, and fails their running jobs. Callers hold the experiment
// lock, so such runs cannot still be alive.
func (s *Store) ResetInterrupted(ctx context.Context, modelRoot string) (int64, error) {
	now := formatTime(time.Now())
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, finished_at = ?
         WHERE model_root = ? AND status = ?`,
		JobFailed, InterruptedReason, now, modelRoot, JobRunning,
	); err != nil {
		return 0, fmt.Errorf("reset interrupted jobs: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ?
         WHERE model_root = ? AND status = ?`,
		RunInterrupted, InterruptedReason, now, modelRoot, RunRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

const runColumns = `id, model_root, vocoder, train_length, status, planned, completed, skipped, failed,
    error_message, started_at, finished_at`

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// FindRun resolves a full run id or a unique prefix of one.
func (s *Store) FindRun(ctx context.Context, prefix string) (Run, error) {
	if prefix == "" {
		return Run{}, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+runColumns+` FROM runs WHERE substr(id, 1, ?) = ? ORDER BY started_at DESC LIMIT 2`,
		len(prefix), prefix)
	if err != nil {
		return Run{}, fmt.Errorf("find run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, fmt.Errorf("scan run: %w", err)
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(matches) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("%w: %s", ErrAmbiguousRun, prefix)
	}
}

// ListRuns returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		errMsg   sql.NullString
		started  string
		finished sql.NullString
	)
	if err := row.Scan(
		&run.ID, &run.ModelRoot, &run.Vocoder, &run.TrainLength, &run.Status,
		&run.Totals.Planned, &run.Totals.Completed, &run.Totals.Skipped, &run.Totals.Failed,
		&errMsg, &started, &finished,
	); err != nil {
		return Run{}, err
	}
	run.Error = errMsg.String
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished.String)
	return run, nil
}

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrJobNotFound is returned when a job key is not part of the run.
var ErrJobNotFound = errors.New("job not found")

// AddJobs records the planned jobs of a run as pending.
func (s *Store) AddJobs(ctx context.Context, runID, modelRoot string, jobs []Job) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin add jobs: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO jobs (run_id, model_root, job_key, task, subtask, source_path, target_path, status)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare add jobs: %w", err)
		}
		defer stmt.Close()

		for _, job := range jobs {
			if _, err := stmt.ExecContext(ctx, runID, modelRoot, job.Key, job.Task, job.Subtask,
				job.SourcePath, job.TargetPath, JobPending); err != nil {
				return fmt.Errorf("add job %s: %w", job.Key, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE runs SET planned = ? WHERE id = ?`, len(jobs), runID); err != nil {
			return fmt.Errorf("update planned count: %w", err)
		}
		return tx.Commit()
	})
}

// CompletedKeys returns the keys of jobs already completed against
// modelRoot by any run.
func (s *Store) CompletedKeys(ctx context.Context, modelRoot string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT DISTINCT job_key FROM jobs WHERE model_root = ? AND status = ?`,
		modelRoot, JobCompleted)
	if err != nil {
		return nil, fmt.Errorf("completed jobs: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// MarkRunning flags a job as in progress.
func (s *Store) MarkRunning(ctx context.Context, runID, key string) error {
	return s.updateJob(ctx, runID, key,
		`UPDATE jobs SET status = ?, started_at = ? WHERE run_id = ? AND job_key = ?`,
		JobRunning, formatTime(time.Now()))
}

// MarkCompleted records the artifacts of a finished job.
func (s *Store) MarkCompleted(ctx context.Context, runID, key string, artifacts Artifacts) error {
	return s.updateJob(ctx, runID, key,
		`UPDATE jobs SET status = ?, finished_at = ?, error_message = NULL,
             source_artifact = ?, target_artifact = ?, converted_artifact = ?
         WHERE run_id = ? AND job_key = ?`,
		JobCompleted, formatTime(time.Now()),
		nullable(artifacts.Source), nullable(artifacts.Target), nullable(artifacts.Converted))
}

// RecordArtifacts stores the artifacts a running job has written so far.
// Empty fields leave the stored value alone.
func (s *Store) RecordArtifacts(ctx context.Context, runID, key string, artifacts Artifacts) error {
	return s.updateJob(ctx, runID, key,
		`UPDATE jobs SET source_artifact = COALESCE(?, source_artifact),
             target_artifact = COALESCE(?, target_artifact),
             converted_artifact = COALESCE(?, converted_artifact)
         WHERE run_id = ? AND job_key = ?`,
		nullable(artifacts.Source), nullable(artifacts.Target), nullable(artifacts.Converted))
}

// UnfinishedArtifacts returns the artifact paths written by failed or
// interrupted attempts at key against modelRoot, as long as no attempt has
// completed it since.
func (s *Store) UnfinishedArtifacts(ctx context.Context, modelRoot, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT source_artifact, target_artifact, converted_artifact FROM jobs
         WHERE model_root = ? AND job_key = ? AND status = ?
           AND NOT EXISTS (SELECT 1 FROM jobs done
                           WHERE done.model_root = jobs.model_root AND done.job_key = jobs.job_key
                             AND done.status = ?)
         ORDER BY id`,
		modelRoot, key, JobFailed, JobCompleted)
	if err != nil {
		return nil, fmt.Errorf("unfinished artifacts: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var paths []string
	for rows.Next() {
		var src, tgt, conv sql.NullString
		if err := rows.Scan(&src, &tgt, &conv); err != nil {
			return nil, fmt.Errorf("scan artifacts: %w", err)
		}
		for _, v := range []sql.NullString{src, tgt, conv} {
			if !v.Valid || v.String == "" {
				continue
			}
			if _, ok := seen[v.String]; ok {
				continue
			}
			seen[v.String] = struct{}{}
			paths = append(paths, v.String)
		}
	}
	return paths, rows.Err()
}

// MarkFailed records the error of a failed job.
func (s *Store) MarkFailed(ctx context.Context, runID, key, errMsg string) error {
	return s.updateJob(ctx, runID, key,
		`UPDATE jobs SET status = ?, finished_at = ?, error_message = ? WHERE run_id = ? AND job_key = ?`,
		JobFailed, formatTime(time.Now()), nullable(errMsg))
}

// MarkSkipped records a job that was not run, with the reason.
func (s *Store) MarkSkipped(ctx context.Context, runID, key, reason string) error {
	return s.updateJob(ctx, runID, key,
		`UPDATE jobs SET status = ?, finished_at = ?, error_message = ? WHERE run_id = ? AND job_key = ?`,
		JobSkipped, formatTime(time.Now()), nullable(reason))
}

// updateJob runs query with args followed by runID and key.
func (s *Store) updateJob(ctx context.Context, runID, key, query string, args ...any) error {
	args = append(args, runID, key)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s in run %s", ErrJobNotFound, key, runID)
	}
	return nil
}

// JobCounts returns the number of jobs of a run per status.
func (s *Store) JobCounts(ctx context.Context, runID string) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM jobs WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("job counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ListJobs returns the jobs of a run in plan order, optionally filtered by
// status.
func (s *Store) ListJobs(ctx context.Context, runID string, statuses ...JobStatus) ([]Job, error) {
	query := `SELECT run_id, job_key, task, subtask, source_path, target_path, status, error_message,
        source_artifact, target_artifact, converted_artifact, started_at, finished_at
        FROM jobs WHERE run_id = ?`
	args := []any{runID}
	if len(statuses) > 0 {
		query += ` AND status IN (`
		for i, status := range statuses {
			if i > 0 {
				query += `, `
			}
			query += `?`
			args = append(args, status)
		}
		query += `)`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var (
			job                    Job
			errMsg, src, tgt, conv sql.NullString
			started, finished      sql.NullString
		)
		if err := rows.Scan(&job.RunID, &job.Key, &job.Task, &job.Subtask, &job.SourcePath, &job.TargetPath,
			&job.Status, &errMsg, &src, &tgt, &conv, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Error = errMsg.String
		job.Artifacts = Artifacts{Source: src.String, Target: tgt.String, Converted: conv.String}
		job.StartedAt = parseTime(started.String)
		job.FinishedAt = parseTime(finished.String)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"crossvoice/internal/conversion"
	"crossvoice/internal/ledger"
	"crossvoice/internal/logging"
	"crossvoice/internal/outputs"
)

// LockFileName is created inside the model root while a run holds it.
const LockFileName = ".crossvoice.lock"

var (
	// ErrLocked is returned when another run holds the experiment tree.
	ErrLocked = errors.New("experiment tree is locked by another run")
	// ErrJobsFailed is returned when at least one job failed.
	ErrJobsFailed = errors.New("conversion jobs failed")
)

// JobConverter runs one attempt at a conversion job.
type JobConverter interface {
	ConvertAttempt(ctx context.Context, job conversion.Job, attempt conversion.Attempt) (conversion.Result, error)
}

// Runner executes a planned job list sequentially.
type Runner struct {
	Converter JobConverter
	Ledger    *ledger.Store

	// ModelRoot is <experiment_root>/<model_name>.
	ModelRoot   string
	CreateDirs  bool
	Vocoder     string
	TrainLength string
	Jobs        []conversion.Job

	// ContinueOnError keeps going after a failed job instead of stopping.
	ContinueOnError bool
	// Resume skips jobs already completed against ModelRoot.
	Resume bool

	Logger *slog.Logger
}

// Failure is one failed job.
type Failure struct {
	Key   string
	Error string
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID     string
	Planned   int
	Completed int
	Skipped   int
	Failed    int
	// Written counts artifacts synthesized, excluding kept files.
	Written     int
	Interrupted bool
	Elapsed     time.Duration
	Failures    []Failure
}

// Remaining is the number of planned jobs that never started.
func (s Summary) Remaining() int {
	return s.Planned - s.Completed - s.Skipped - s.Failed
}

// Run takes the experiment lock, records the run and converts every job.
// It returns ErrJobsFailed when any job failed, the context error when
// interrupted, and nil otherwise. The summary is valid in every case.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	logger := logging.NewComponentLogger(r.Logger, "experiment")
	if r.Converter == nil || r.Ledger == nil {
		return Summary{}, errors.New("experiment runner needs a converter and a ledger")
	}
	start := time.Now()

	unlock, err := r.lock()
	if err != nil {
		return Summary{}, err
	}
	defer unlock()

	// Bookkeeping must land even after cancellation.
	bookCtx := context.WithoutCancel(ctx)

	if n, err := r.Ledger.ResetInterrupted(bookCtx, r.ModelRoot); err != nil {
		return Summary{}, err
	} else if n > 0 {
		logging.WarnWithContext(logger, "previous run did not finish", "run_interrupted",
			logging.Int64("runs", n),
			logging.String(logging.FieldErrorHint, "its unfinished jobs will run again"),
			logging.String(logging.FieldImpact, "none"),
		)
	}

	run, err := r.Ledger.StartRun(bookCtx, ledger.Run{
		ModelRoot:   r.ModelRoot,
		Vocoder:     r.Vocoder,
		TrainLength: r.TrainLength,
	})
	if err != nil {
		return Summary{}, err
	}
	ctx = logging.WithRunID(ctx, run.ID)
	logger = logging.WithContext(ctx, logger)

	summary := Summary{RunID: run.ID, Planned: len(r.Jobs)}
	records := make([]ledger.Job, 0, len(r.Jobs))
	for _, job := range r.Jobs {
		records = append(records, ledger.Job{
			Key:        job.Key(),
			Task:       job.Task,
			Subtask:    job.Subtask,
			SourcePath: job.Source.Path,
			TargetPath: job.Target.Path,
		})
	}
	if err := r.Ledger.AddJobs(bookCtx, run.ID, r.ModelRoot, records); err != nil {
		r.finish(bookCtx, logger, &summary, start, err)
		return summary, err
	}

	done := map[string]struct{}{}
	if r.Resume {
		if done, err = r.Ledger.CompletedKeys(bookCtx, r.ModelRoot); err != nil {
			r.finish(bookCtx, logger, &summary, start, err)
			return summary, err
		}
	}

	logger.Info("experiment run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.Int("jobs", len(r.Jobs)),
		logging.Int("already_completed", len(done)),
		logging.String("model_root", r.ModelRoot),
	)

	var runErr error
	for i, job := range r.Jobs {
		if ctx.Err() != nil {
			summary.Interrupted = true
			runErr = ctx.Err()
			break
		}
		key := job.Key()
		if _, ok := done[key]; ok {
			if err := r.Ledger.MarkSkipped(bookCtx, run.ID, key, "completed in an earlier run"); err != nil {
				runErr = err
				break
			}
			summary.Skipped++
			continue
		}

		if err := r.Ledger.MarkRunning(bookCtx, run.ID, key); err != nil {
			runErr = err
			break
		}
		jobLogger := logger.With(logging.String(logging.FieldJobKey, key))
		jobLogger.Info("converting",
			logging.Int("index", i+1),
			logging.Int("total", len(r.Jobs)),
			logging.String(logging.FieldTask, job.Task),
			logging.String(logging.FieldSubtask, job.Subtask),
		)

		attempt, err := r.attempt(bookCtx, run.ID, key, jobLogger)
		if err != nil {
			runErr = err
			break
		}
		result, err := r.Converter.ConvertAttempt(logging.WithJobKey(ctx, key), job, attempt)
		if err != nil {
			if ctx.Err() != nil {
				_ = r.Ledger.MarkFailed(bookCtx, run.ID, key, ledger.InterruptedReason)
				summary.Failed++
				summary.Interrupted = true
				runErr = ctx.Err()
				break
			}
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{Key: key, Error: err.Error()})
			if markErr := r.Ledger.MarkFailed(bookCtx, run.ID, key, err.Error()); markErr != nil {
				runErr = markErr
				break
			}
			logging.ErrorWithContext(jobLogger, "conversion job failed", "job_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the sample and the python stderr above"),
			)
			if !r.ContinueOnError {
				runErr = fmt.Errorf("%w: stopped at %s: %w", ErrJobsFailed, key, err)
				break
			}
			continue
		}

		summary.Completed++
		summary.Written += result.Written()
		if err := r.Ledger.MarkCompleted(bookCtx, run.ID, key, artifactsOf(result.Artifacts...)); err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil && summary.Failed > 0 {
		runErr = fmt.Errorf("%w: %d of %d", ErrJobsFailed, summary.Failed, summary.Planned)
	}
	r.finish(bookCtx, logger, &summary, start, runErr)
	return summary, runErr
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, summary *Summary, start time.Time, runErr error) {
	summary.Elapsed = time.Since(start)
	status := ledger.RunCompleted
	errMsg := ""
	switch {
	case summary.Interrupted:
		status = ledger.RunInterrupted
		errMsg = ledger.InterruptedReason
	case runErr != nil:
		status = ledger.RunFailed
		errMsg = runErr.Error()
	}
	totals := ledger.Totals{
		Planned:   summary.Planned,
		Completed: summary.Completed,
		Skipped:   summary.Skipped,
		Failed:    summary.Failed,
	}
	if err := r.Ledger.FinishRun(ctx, summary.RunID, status, totals, errMsg); err != nil {
		logger.Warn("failed to record run outcome", logging.Error(err))
	}
	logger.Info("experiment run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.String("status", string(status)),
		logging.Int("planned", summary.Planned),
		logging.Int("completed", summary.Completed),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
		logging.Int("written", summary.Written),
		logging.Duration("elapsed", summary.Elapsed),
	)
}

// lock creates the model root when allowed and takes an exclusive flock on
// it for the duration of the run.
func (r *Runner) lock() (func(), error) {
	if r.ModelRoot == "" {
		return nil, errors.New("experiment runner needs a model root")
	}
	if r.CreateDirs {
		if err := os.MkdirAll(r.ModelRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create model root: %w", err)
		}
	} else if info, err := os.Stat(r.ModelRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", outputs.ErrMissingDir, r.ModelRoot)
	}

	lockPath := filepath.Join(r.ModelRoot, LockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, lockPath)
	}
	return func() { _ = lock.Unlock() }, nil
}

// attempt hands the converter the files earlier unfinished tries of key
// left behind, and records each new file in the ledger as it lands so a
// later retry can reclaim it.
func (r *Runner) attempt(ctx context.Context, runID, key string, logger *slog.Logger) (conversion.Attempt, error) {
	reclaim, err := r.Ledger.UnfinishedArtifacts(ctx, r.ModelRoot, key)
	if err != nil {
		return conversion.Attempt{}, err
	}
	if len(reclaim) > 0 {
		logger.Info("reclaiming files of an unfinished attempt", logging.Int("files", len(reclaim)))
	}
	return conversion.Attempt{
		Reclaim: reclaim,
		Landed: func(a conversion.Artifact) {
			if err := r.Ledger.RecordArtifacts(ctx, runID, key, artifactsOf(a)); err != nil {
				logger.Warn("failed to record artifact",
					logging.String(logging.FieldPath, a.Path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "a retry of this job may hit its own file"),
				)
			}
		},
	}, nil
}

func artifactsOf(artifacts ...conversion.Artifact) ledger.Artifacts {
	var a ledger.Artifacts
	for _, artifact := range artifacts {
		switch artifact.Role {
		case conversion.RoleSource:
			a.Source = artifact.Path
		case conversion.RoleTarget:
			a.Target = artifact.Path
		case conversion.RoleConverted:
			a.Converted = artifact.Path
		}
	}
	return a
}

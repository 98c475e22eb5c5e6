package ledger

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// JobStatus is the lifecycle state of one conversion job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
)

// JobStatuses lists job states in display order.
func JobStatuses() []JobStatus {
	return []JobStatus{JobPending, JobRunning, JobCompleted, JobSkipped, JobFailed}
}

// InterruptedReason is stored on jobs left running by a run that never finished.
const InterruptedReason = "run interrupted"

// Run is one invocation of the experiment driver.
type Run struct {
	ID          string
	ModelRoot   string
	Vocoder     string
	TrainLength string
	Status      RunStatus
	Totals      Totals
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Totals counts job outcomes of a run.
type Totals struct {
	Planned   int
	Completed int
	Skipped   int
	Failed    int
}

// Job is a planned conversion job inside a run.
type Job struct {
	RunID      string
	Key        string
	Task       string
	Subtask    string
	SourcePath string
	TargetPath string
	Status     JobStatus
	Error      string
	Artifacts  Artifacts
	StartedAt  time.Time
	FinishedAt time.Time
}

// Artifacts are the output paths recorded for a completed job.
type Artifacts struct {
	Source    string
	Target    string
	Converted string
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

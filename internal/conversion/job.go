package conversion

import (
	"fmt"

	"crossvoice/internal/dataset"
	"crossvoice/internal/outputs"
)

// Job converts one source sample into the voice of one target sample.
// Task and Subtask only decide where the converted artifact is filed.
type Job struct {
	Source  dataset.Sample
	Target  dataset.Sample
	Task    string
	Subtask string
}

// Key identifies the job across runs: task/subtask/source->target.
func (j Job) Key() string {
	return fmt.Sprintf("%s/%s/%s->%s", j.Task, j.Subtask, j.Source.Path, j.Target.Path)
}

// ConvertedName is the file stem of the converted artifact inside its
// task/subtask bucket, e.g. p225_001_to_p226_003.
func (j Job) ConvertedName() string {
	return outputs.ConvertedName(
		outputs.SampleName(j.Source.Speaker, j.Source.Path),
		outputs.SampleName(j.Target.Speaker, j.Target.Path),
	)
}

// Attempt is the ledger side of one try at a job.
type Attempt struct {
	// Reclaim lists artifacts written by earlier unfinished tries of the same
	// job. They are replaced whatever the conflict policy says.
	Reclaim []string
	// Landed is called after each artifact is written to disk.
	Landed func(Artifact)
}

// Artifact is one written or skipped output file.
type Artifact struct {
	Role    Role
	Path    string
	Skipped bool
}

// Result holds the three artifacts of a job, in Roles order.
type Result struct {
	Job       Job
	Artifacts []Artifact
}

// Artifact returns the artifact for role.
func (r Result) Artifact(role Role) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Role == role {
			return a, true
		}
	}
	return Artifact{}, false
}

// Written counts artifacts synthesized by this call.
func (r Result) Written() int {
	n := 0
	for _, a := range r.Artifacts {
		if !a.Skipped {
			n++
		}
	}
	return n
}

// JobError is a failure in one role of one job.
type JobError struct {
	Key  string
	Role Role
	Err  error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s (%s): %v", e.Key, e.Role, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

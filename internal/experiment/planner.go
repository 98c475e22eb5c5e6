package experiment

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"crossvoice/internal/conversion"
	"crossvoice/internal/dataset"
	"crossvoice/internal/language"
	"crossvoice/internal/metadata"
)

// MaleMale is the subtask every job is filed under when a training length
// override is set.
const MaleMale = "Male_Male"

// PlanOptions adjusts pairing.
type PlanOptions struct {
	// TrainLength switches to the English-only training-length experiment:
	// task = TrainLength, subtask = Male_Male.
	TrainLength string
}

// ErrOutputCollision is returned by PlanStats.Err when two planned jobs
// would write the same converted artifact.
var ErrOutputCollision = errors.New("planned jobs share a converted output name")

// PlanStats explains what the planner did with the input.
type PlanStats struct {
	Speakers int `json:"speakers"`
	Samples  int `json:"samples"`
	Jobs     int `json:"jobs"`

	// SkippedUnknownTarget counts pairs whose target speaker has no
	// metadata row.
	SkippedUnknownTarget int `json:"skipped_unknown_target"`
	// SkippedLanguage counts pairs rejected by the language rule.
	SkippedLanguage int `json:"skipped_language"`

	// UnknownSpeakers are dataset speakers missing from the metadata.
	UnknownSpeakers []string `json:"unknown_speakers,omitempty"`
	// SpeakersWithoutSamples are metadata speakers with no test samples.
	SpeakersWithoutSamples []string `json:"speakers_without_samples,omitempty"`
	// Collisions are task/subtask/name outputs claimed by more than one job.
	Collisions []string `json:"collisions,omitempty"`
}

// Err reports plans that cannot run as planned.
func (s PlanStats) Err() error {
	if len(s.Collisions) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrOutputCollision, strings.Join(s.Collisions, ", "))
}

// Plan enumerates conversion jobs. Source speakers are visited in metadata
// order; each of their samples is paired with every sample of a different
// speaker, in dataset order.
func Plan(table *metadata.Table, samples []dataset.Sample, opts PlanOptions) ([]conversion.Job, PlanStats) {
	stats := PlanStats{Speakers: table.Len(), Samples: len(samples)}
	unknown := make(map[string]struct{})

	var jobs []conversion.Job
	for _, speaker := range table.Speakers() {
		sources := samplesOf(samples, speaker.ID)
		if len(sources) == 0 {
			stats.SpeakersWithoutSamples = append(stats.SpeakersWithoutSamples, speaker.ID)
			continue
		}
		for _, source := range sources {
			for _, target := range samples {
				if target.Speaker == speaker.ID {
					continue
				}
				other, ok := table.Lookup(target.Speaker)
				if !ok {
					stats.SkippedUnknownTarget++
					unknown[target.Speaker] = struct{}{}
					continue
				}
				task, subtask, ok := Classify(speaker, other, opts)
				if !ok {
					stats.SkippedLanguage++
					continue
				}
				jobs = append(jobs, conversion.Job{
					Source:  source,
					Target:  target,
					Task:    task,
					Subtask: subtask,
				})
			}
		}
	}

	for id := range unknown {
		stats.UnknownSpeakers = append(stats.UnknownSpeakers, id)
	}
	sort.Strings(stats.UnknownSpeakers)
	stats.Collisions = collisions(jobs)
	stats.Jobs = len(jobs)
	return jobs, stats
}

// collisions lists converted outputs that more than one job maps to.
func collisions(jobs []conversion.Job) []string {
	owners := make(map[string]int, len(jobs))
	for _, job := range jobs {
		owners[path.Join(job.Task, job.Subtask, job.ConvertedName())]++
	}
	var out []string
	for name, n := range owners {
		if n > 1 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Classify decides whether a source/target speaker pair qualifies and
// returns the task and subtask its converted output is filed under.
func Classify(source, target metadata.Speaker, opts PlanOptions) (string, string, bool) {
	if opts.TrainLength != "" {
		if !language.IsEnglish(source.Language) || !language.IsEnglish(target.Language) {
			return "", "", false
		}
		return opts.TrainLength, MaleMale, true
	}
	if source.Language != target.Language {
		return "", "", false
	}
	return source.Language + "_" + target.Language, source.Gender + "_" + target.Gender, true
}

func samplesOf(samples []dataset.Sample, speaker string) []dataset.Sample {
	var out []dataset.Sample
	for _, s := range samples {
		if s.Speaker == speaker {
			out = append(out, s)
		}
	}
	return out
}

// Buckets counts jobs per task/subtask, sorted by task then subtask.
func Buckets(jobs []conversion.Job) []BucketCount {
	counts := make(map[[2]string]int)
	for _, job := range jobs {
		counts[[2]string{job.Task, job.Subtask}]++
	}
	out := make([]BucketCount, 0, len(counts))
	for key, n := range counts {
		out = append(out, BucketCount{Task: key[0], Subtask: key[1], Jobs: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Task != out[j].Task {
			return out[i].Task < out[j].Task
		}
		return out[i].Subtask < out[j].Subtask
	})
	return out
}

// BucketCount is the number of jobs filed under one task/subtask.
type BucketCount struct {
	Task    string `json:"task"`
	Subtask string `json:"subtask"`
	Jobs    int    `json:"jobs"`
}

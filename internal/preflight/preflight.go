package preflight

import (
	"context"

	"crossvoice/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckLauncher(ctx, cfg.Runtime.Launcher, cfg.Runtime.Python))
	results = append(results, CheckDirectoryReadable("Model directory", cfg.Runtime.ModelDir))

	results = append(results, CheckFile("Conversion checkpoint", cfg.Models.Conversion))
	results = append(results, CheckFile("Vocoder checkpoint ("+cfg.Vocoder.Kind+")", cfg.VocoderCheckpoint(cfg.Vocoder.Kind)))
	results = append(results, CheckFile("Speaker encoder checkpoint", cfg.Models.SpeakerEncoder))

	results = append(results, CheckMetadata(cfg.Experiment.Metadata))
	results = append(results, CheckDataset(cfg.Experiment.Dataset, cfg.Experiment.DatasetLayout, cfg.Experiment.TestSize))

	results = append(results, CheckOutputRoot("Experiment root", cfg.Paths.ExperimentRoot, cfg.Output.CreateDirs))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	return results
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"crossvoice/internal/config"
	"crossvoice/internal/conversion"
	"crossvoice/internal/dataset"
	"crossvoice/internal/experiment"
	"crossvoice/internal/metadata"
	"crossvoice/internal/outputs"
	"crossvoice/internal/waveform"
)

type convertOptions struct {
	task          string
	subtask       string
	sourceSpeaker string
	targetSpeaker string
	vocoder       string
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert SOURCE TARGET",
		Short: "Convert one utterance into the voice of another speaker",
		Long: "Runs a single conversion job. Speaker ids default to the file name prefix before the " +
			"first underscore. Without --task and --subtask the pair is classified with the " +
			"metadata table the same way a run would.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			if v := strings.TrimSpace(opts.vocoder); v != "" {
				cfg.Vocoder.Kind = strings.ToLower(v)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			job, err := opts.job(&cfg, args[0], args[1])
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			logger, err := ctx.newLogger(&cfg)
			if err != nil {
				return err
			}
			p, err := newPipeline(signalCtx, &cfg, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.converter.Convert(signalCtx, job)
			if err != nil {
				return err
			}
			printArtifacts(cmd.OutOrStdout(), cfg.ModelRoot(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.task, "task", "", "Task directory of the converted file")
	cmd.Flags().StringVar(&opts.subtask, "subtask", "", "Subtask directory of the converted file")
	cmd.Flags().StringVar(&opts.sourceSpeaker, "source-speaker", "", "Speaker id of SOURCE")
	cmd.Flags().StringVar(&opts.targetSpeaker, "target-speaker", "", "Speaker id of TARGET")
	cmd.Flags().StringVar(&opts.vocoder, "vocoder", "", "Vocoder kind (wavernn or wavenet)")
	return cmd
}

// job resolves the speakers and output bucket of an ad-hoc conversion.
func (o *convertOptions) job(cfg *config.Config, sourceArg, targetArg string) (conversion.Job, error) {
	source, err := config.ExpandPath(sourceArg)
	if err != nil {
		return conversion.Job{}, err
	}
	target, err := config.ExpandPath(targetArg)
	if err != nil {
		return conversion.Job{}, err
	}
	job := conversion.Job{
		Source:  dataset.Sample{Path: source, Speaker: speakerOr(o.sourceSpeaker, source)},
		Target:  dataset.Sample{Path: target, Speaker: speakerOr(o.targetSpeaker, target)},
		Task:    strings.TrimSpace(o.task),
		Subtask: strings.TrimSpace(o.subtask),
	}
	if job.Task != "" && job.Subtask != "" {
		return job, nil
	}

	table, err := metadata.Load(cfg.Experiment.Metadata)
	if err != nil {
		return conversion.Job{}, fmt.Errorf("classify pair (pass --task and --subtask to skip): %w", err)
	}
	src, ok := table.Lookup(job.Source.Speaker)
	if !ok {
		return conversion.Job{}, fmt.Errorf("source speaker %q not in metadata; pass --task and --subtask", job.Source.Speaker)
	}
	tgt, ok := table.Lookup(job.Target.Speaker)
	if !ok {
		return conversion.Job{}, fmt.Errorf("target speaker %q not in metadata; pass --task and --subtask", job.Target.Speaker)
	}
	task, subtask, ok := experiment.Classify(src, tgt, experiment.PlanOptions{TrainLength: cfg.Experiment.TrainLength})
	if !ok {
		return conversion.Job{}, errors.New("speakers do not qualify as a pair under the language rule; pass --task and --subtask to force")
	}
	if job.Task == "" {
		job.Task = task
	}
	if job.Subtask == "" {
		job.Subtask = subtask
	}
	return job, nil
}

func speakerOr(flag, path string) string {
	if v := strings.TrimSpace(flag); v != "" {
		return v
	}
	return outputs.SpeakerFromName(path)
}

func printArtifacts(out io.Writer, root string, result conversion.Result) {
	rows := make([][]string, 0, len(result.Artifacts))
	for _, a := range result.Artifacts {
		state := "written"
		if a.Skipped {
			state = "kept"
		}
		rows = append(rows, []string{a.Role.String(), relPath(root, a.Path), state, audioLength(a.Path)})
	}
	fmt.Fprintln(out, tableSpec{
		Title:   result.Job.Key(),
		Headers: []string{"Role", "File", "State", "Length"},
		Rows:    rows,
	}.render())
}

// audioLength reports the duration of the WAV at path, or "-" when it cannot
// be read.
func audioLength(path string) string {
	info, err := waveform.Probe(path)
	if err != nil {
		return "-"
	}
	return info.Duration.Round(10 * time.Millisecond).String()
}

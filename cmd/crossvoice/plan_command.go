package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"crossvoice/internal/config"
	"crossvoice/internal/conversion"
	"crossvoice/internal/experiment"
	"crossvoice/internal/outputs"
)

type planJobJSON struct {
	Key       string `json:"key"`
	Task      string `json:"task"`
	Subtask   string `json:"subtask"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Converted string `json:"converted"`
}

type planJSON struct {
	ModelRoot string                   `json:"model_root"`
	Stats     experiment.PlanStats     `json:"stats"`
	Buckets   []experiment.BucketCount `json:"buckets"`
	Jobs      []planJobJSON            `json:"jobs,omitempty"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	overrides := &runOverrides{}
	var summaryOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List the conversion jobs a run would perform",
		Long:  "Dry run: reads the metadata and dataset and prints the planned jobs without loading any model.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := overrides.apply(base)
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			table, split, err := experimentInputs(cfg, logger)
			if err != nil {
				return err
			}
			jobs, stats := experiment.Plan(table, split.Test, experiment.PlanOptions{TrainLength: cfg.Experiment.TrainLength})
			buckets := experiment.Buckets(jobs)

			if asJSON {
				payload := planJSON{ModelRoot: cfg.ModelRoot(), Stats: stats, Buckets: buckets}
				if !summaryOnly {
					payload.Jobs = planJobsJSON(cfg, jobs)
				}
				if err := writeJSON(cmd, payload); err != nil {
					return err
				}
				return stats.Err()
			}

			out := cmd.OutOrStdout()
			if !summaryOnly {
				printPlanJobs(out, cfg, jobs)
			}
			printPlanSummary(out, cfg, stats, buckets)
			return stats.Err()
		},
	}
	overrides.register(cmd)
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "Print only the per-bucket job counts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func planJobsJSON(cfg *config.Config, jobs []conversion.Job) []planJobJSON {
	layout := outputs.NewLayout(cfg.Paths.ExperimentRoot, cfg.Experiment.ModelName, cfg.Output.CreateDirs)
	out := make([]planJobJSON, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, planJobJSON{
			Key:       job.Key(),
			Task:      job.Task,
			Subtask:   job.Subtask,
			Source:    job.Source.Path,
			Target:    job.Target.Path,
			Converted: layout.ConvertedStem(job.Task, job.Subtask, job.ConvertedName()) + outputs.Extension,
		})
	}
	return out
}

func printPlanJobs(out io.Writer, cfg *config.Config, jobs []conversion.Job) {
	if len(jobs) == 0 {
		return
	}
	layout := outputs.NewLayout(cfg.Paths.ExperimentRoot, cfg.Experiment.ModelName, cfg.Output.CreateDirs)
	rows := make([][]string, 0, len(jobs))
	for i, job := range jobs {
		converted := layout.ConvertedStem(job.Task, job.Subtask, job.ConvertedName()) + outputs.Extension
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			job.Task,
			job.Subtask,
			outputs.SampleName(job.Source.Speaker, job.Source.Path),
			outputs.SampleName(job.Target.Speaker, job.Target.Path),
			relPath(layout.Root, converted),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Task", "Subtask", "Source", "Target", "Output"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	))
}

func printPlanSummary(out io.Writer, cfg *config.Config, stats experiment.PlanStats, buckets []experiment.BucketCount) {
	rows := make([][]string, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, []string{b.Task, b.Subtask, strconv.Itoa(b.Jobs)})
	}
	fmt.Fprintln(out, tableSpec{
		Title:   "Plan for " + cfg.ModelRoot(),
		Headers: []string{"Task", "Subtask", "Jobs"},
		Rows:    rows,
		Footer:  []string{"Total", "", strconv.Itoa(stats.Jobs)},
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight},
	}.render())

	fmt.Fprintf(out, "%s, %s in the test split\n", plural(stats.Speakers, "speaker"), plural(stats.Samples, "sample"))
	if stats.SkippedLanguage > 0 {
		fmt.Fprintf(out, "%s skipped by the language rule\n", plural(stats.SkippedLanguage, "pair"))
	}
	if stats.SkippedUnknownTarget > 0 {
		fmt.Fprintf(out, "%s skipped: target speaker missing from metadata (%v)\n",
			plural(stats.SkippedUnknownTarget, "pair"), stats.UnknownSpeakers)
	}
	if len(stats.SpeakersWithoutSamples) > 0 {
		fmt.Fprintf(out, "Speakers without test samples: %v\n", stats.SpeakersWithoutSamples)
	}
	for _, name := range stats.Collisions {
		fmt.Fprintf(out, "Output claimed by more than one job: %s\n", name)
	}
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"crossvoice/internal/config"
	"crossvoice/internal/experiment"
	"crossvoice/internal/ledger"
	"crossvoice/internal/logging"
	"crossvoice/internal/preflight"
)

// runOverrides are flag values layered over the loaded config.
type runOverrides struct {
	vocoder         string
	model           string
	metadata        string
	dataset         string
	testSize        int
	trainLength     string
	root            string
	continueOnError bool
	noResume        bool
}

func (o *runOverrides) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&o.vocoder, "vocoder", "", "Vocoder kind (wavernn or wavenet)")
	flags.StringVar(&o.model, "model", "", "Conversion model checkpoint (relative to runtime.model_dir)")
	flags.StringVar(&o.metadata, "metadata", "", "Speaker metadata CSV (relative to the working directory)")
	flags.StringVar(&o.dataset, "dataset", "", "Dataset directory (relative to the working directory)")
	flags.IntVar(&o.testSize, "test-size", 0, "Utterances per speaker in the test split")
	flags.StringVar(&o.trainLength, "train-length", "", "Run the English-only training-length experiment under this label")
	flags.StringVar(&o.root, "root", "", "Experiment output root (relative to the working directory)")
}

// apply returns a copy of cfg with the overrides set and validated.
func (o *runOverrides) apply(cfg *config.Config) (*config.Config, error) {
	out := *cfg
	if v := strings.TrimSpace(o.vocoder); v != "" {
		out.Vocoder.Kind = strings.ToLower(v)
	}
	// Checkpoints live in the model checkout; data paths typed on the
	// command line follow the shell's working directory.
	paths := []struct {
		flag    string
		dst     *string
		resolve func(string) (string, error)
	}{
		{o.model, &out.Models.Conversion, out.ResolveModelPath},
		{o.metadata, &out.Experiment.Metadata, config.ExpandPath},
		{o.dataset, &out.Experiment.Dataset, config.ExpandPath},
		{o.root, &out.Paths.ExperimentRoot, config.ExpandPath},
	}
	for _, p := range paths {
		if strings.TrimSpace(p.flag) == "" {
			continue
		}
		resolved, err := p.resolve(strings.TrimSpace(p.flag))
		if err != nil {
			return nil, err
		}
		*p.dst = resolved
	}
	if o.testSize != 0 {
		out.Experiment.TestSize = o.testSize
	}
	if v := strings.TrimSpace(o.trainLength); v != "" {
		out.Experiment.TrainLength = v
	}
	if o.continueOnError {
		out.Experiment.ContinueOnError = true
	}
	if o.noResume {
		out.Experiment.Resume = false
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	overrides := &runOverrides{}
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the conversion experiment",
		Long: "Plan every qualifying source/target pair of the test split, load the models once " +
			"and convert each pair, writing source, target and converted audio below " +
			"<experiment_root>/<model_name>.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := overrides.apply(base)
			if err != nil {
				return err
			}
			return runExperiment(cmd, ctx, cfg, skipPreflight)
		},
	}
	overrides.register(cmd)
	cmd.Flags().BoolVar(&overrides.continueOnError, "continue-on-error", false, "Keep going after a failed job")
	cmd.Flags().BoolVar(&overrides.noResume, "no-resume", false, "Convert every job even if an earlier run completed it")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Do not run readiness checks before loading models")
	return cmd
}

func runExperiment(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, skipPreflight bool) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := ctx.newLogger(cfg)
	if err != nil {
		return err
	}
	logID := time.Now().UTC().Format("20060102T150405")
	logger, runLog, err := logging.AttachRunLog(logger, cfg, logID)
	if err != nil {
		logger.Warn("run log unavailable", logging.Error(err))
	} else {
		defer runLog.Close()
	}

	if !skipPreflight {
		if failed := preflight.Failed(preflight.RunAll(signalCtx, cfg)); len(failed) > 0 {
			for _, r := range failed {
				logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
					logging.String("check", r.Name),
					logging.String("detail", r.Detail),
					logging.String(logging.FieldErrorHint, "run `crossvoice check` for the full report"),
				)
			}
			return fmt.Errorf("%w: %d failing", errPreflight, len(failed))
		}
	}

	table, split, err := experimentInputs(cfg, logger)
	if err != nil {
		return err
	}
	jobs, stats := experiment.Plan(table, split.Test, experiment.PlanOptions{TrainLength: cfg.Experiment.TrainLength})
	logPlanStats(logger, stats)
	if err := stats.Err(); err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No qualifying speaker pairs; nothing to do.")
		return nil
	}

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := newPipeline(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	runner := &experiment.Runner{
		Converter:       p.converter,
		Ledger:          store,
		ModelRoot:       cfg.ModelRoot(),
		CreateDirs:      cfg.Output.CreateDirs,
		Vocoder:         cfg.Vocoder.Kind,
		TrainLength:     cfg.Experiment.TrainLength,
		Jobs:            jobs,
		ContinueOnError: cfg.Experiment.ContinueOnError,
		Resume:          cfg.Experiment.Resume,
		Logger:          logger,
	}
	summary, runErr := runner.Run(signalCtx)
	if summary.RunID != "" {
		printRunSummary(cmd.OutOrStdout(), summary)
	}
	return runErr
}

func logPlanStats(logger *slog.Logger, stats experiment.PlanStats) {
	logger.Info("jobs planned",
		logging.String(logging.FieldEventType, "plan_ready"),
		logging.Int("jobs", stats.Jobs),
		logging.Int("speakers", stats.Speakers),
		logging.Int("samples", stats.Samples),
		logging.Int("skipped_language", stats.SkippedLanguage),
		logging.Int("skipped_unknown_target", stats.SkippedUnknownTarget),
	)
	if len(stats.UnknownSpeakers) > 0 {
		logger.Warn("dataset speakers missing from metadata",
			logging.String(logging.FieldEventType, "unknown_speakers"),
			logging.String("speakers", strings.Join(stats.UnknownSpeakers, ",")),
			logging.String(logging.FieldImpact, "these speakers are never converted"),
		)
	}
	if len(stats.SpeakersWithoutSamples) > 0 {
		logger.Warn("metadata speakers without test samples",
			logging.String(logging.FieldEventType, "speakers_without_samples"),
			logging.String("speakers", strings.Join(stats.SpeakersWithoutSamples, ",")),
		)
	}
}

func printRunSummary(out io.Writer, summary experiment.Summary) {
	rows := [][]string{
		{"Run", summary.RunID},
		{"Planned", strconv.Itoa(summary.Planned)},
		{"Completed", strconv.Itoa(summary.Completed)},
		{"Skipped (already done)", strconv.Itoa(summary.Skipped)},
		{"Failed", strconv.Itoa(summary.Failed)},
		{"Not started", strconv.Itoa(summary.Remaining())},
		{"Files written", strconv.Itoa(summary.Written)},
		{"Interrupted", yesNo(summary.Interrupted)},
		{"Elapsed", formatDuration(summary.Elapsed)},
	}
	fmt.Fprintln(out, renderTable([]string{"Summary", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	if len(summary.Failures) == 0 {
		return
	}
	failures := make([][]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failures = append(failures, []string{f.Key, f.Error})
	}
	fmt.Fprintln(out, tableSpec{
		Title:   "Failed jobs",
		Headers: []string{"Job", "Error"},
		Rows:    failures,
	}.render())
}

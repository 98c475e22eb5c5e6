package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crossvoice/internal/config"
	"crossvoice/internal/conversion"
	"crossvoice/internal/dataset"
	"crossvoice/internal/embedding"
	"crossvoice/internal/inference"
	"crossvoice/internal/logging"
	"crossvoice/internal/melspec"
	"crossvoice/internal/metadata"
	"crossvoice/internal/outputs"
	"crossvoice/internal/vocoder"
	"crossvoice/internal/waveform"
)

// pipeline is the loaded model stack shared by run, convert and embed.
type pipeline struct {
	models    *inference.Models
	embedder  *embedding.Embedder
	converter *conversion.Converter
}

func loadModels(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*inference.Models, error) {
	kind, err := vocoder.ParseKind(cfg.Vocoder.Kind)
	if err != nil {
		return nil, err
	}
	return inference.Load(ctx, inference.Options{
		Vocoder:              kind,
		ConversionCheckpoint: cfg.Models.Conversion,
		VocoderCheckpoint:    cfg.VocoderCheckpoint(kind.String()),
		EncoderCheckpoint:    cfg.Models.SpeakerEncoder,
		Device:               cfg.Runtime.Device,
		WaveRNNTarget:        cfg.Vocoder.WaveRNNTarget,
		WaveRNNOverlap:       cfg.Vocoder.WaveRNNOverlap,
		WaveRNNMuLaw:         cfg.Vocoder.WaveRNNMuLaw,
		Launch: inference.LaunchOptions{
			Launcher:      cfg.Runtime.Launcher,
			Python:        cfg.Runtime.Python,
			ModelDir:      cfg.Runtime.ModelDir,
			WorkDir:       cfg.Paths.WorkDir,
			CUDAIndex:     cfg.Runtime.CUDAIndex,
			ExtraPackages: cfg.Runtime.ExtraPackages,
		},
		LoadTimeout:    seconds(cfg.Runtime.LoadTimeoutSeconds),
		RequestTimeout: seconds(cfg.Runtime.RequestTimeoutSeconds),
		Logger:         logger,
	})
}

func newPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	conflict, err := outputs.ParsePolicy(cfg.Output.Conflict)
	if err != nil {
		return nil, err
	}
	reconConflict, err := outputs.ParsePolicy(cfg.Output.ReconstructionConflict)
	if err != nil {
		return nil, err
	}

	models, err := loadModels(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	mel, err := melspec.New(models.Mel(), models.Kind().Convention())
	if err != nil {
		_ = models.Close()
		return nil, err
	}
	embedder := embedding.New(models.Encoder(), logger, embedding.WithDimension(cfg.Embedding.Dimension))
	generator := waveform.New(models.Vocoder(), models.Kind(), cfg.Vocoder.SampleRate, logger)

	converter, err := conversion.New(conversion.Deps{
		Mel:                    mel,
		Embedder:               embedder,
		Model:                  models.Converter(),
		Generator:              generator,
		Layout:                 outputs.NewLayout(cfg.Paths.ExperimentRoot, cfg.Experiment.ModelName, cfg.Output.CreateDirs),
		Conflict:               conflict,
		ReconstructionConflict: reconConflict,
		Logger:                 logger,
	})
	if err != nil {
		_ = models.Close()
		return nil, err
	}
	return &pipeline{models: models, embedder: embedder, converter: converter}, nil
}

func (p *pipeline) Close() error {
	if p == nil || p.models == nil {
		return nil
	}
	return p.models.Close()
}

// experimentInputs loads the speaker table and the test split.
func experimentInputs(cfg *config.Config, logger *slog.Logger) (*metadata.Table, dataset.Split, error) {
	table, err := metadata.Load(cfg.Experiment.Metadata)
	if err != nil {
		return nil, dataset.Split{}, err
	}
	layout, err := dataset.ParseLayout(cfg.Experiment.DatasetLayout)
	if err != nil {
		return nil, dataset.Split{}, err
	}
	split, err := dataset.Load(cfg.Experiment.Dataset, layout, cfg.Experiment.TestSize)
	if err != nil {
		return nil, dataset.Split{}, err
	}
	logger.Debug("experiment inputs loaded",
		logging.Int("speakers", table.Len()),
		logging.Int("train_samples", len(split.Train)),
		logging.Int("test_samples", len(split.Test)),
	)
	return table, split, nil
}

// errPreflight is returned when a readiness check fails before a run.
var errPreflight = errors.New("preflight checks failed")

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

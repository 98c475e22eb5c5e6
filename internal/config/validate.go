package config

import (
	"errors"
	"fmt"
	"strings"

	"crossvoice/internal/outputs"
	"crossvoice/internal/vocoder"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRuntime(); err != nil {
		return err
	}
	if err := c.validateVocoder(); err != nil {
		return err
	}
	if err := c.validateExperiment(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Embedding.Dimension < 0 {
		return errors.New("embedding.dimension must be zero or positive")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ExperimentRoot == "" {
		return errors.New("paths.experiment_root must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateRuntime() error {
	switch c.Runtime.Launcher {
	case "python", "uvx":
	default:
		return fmt.Errorf("runtime.launcher: unsupported value %q (want python or uvx)", c.Runtime.Launcher)
	}
	switch c.Runtime.Device {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("runtime.device: unsupported value %q (want auto, cuda or cpu)", c.Runtime.Device)
	}
	if c.Runtime.CUDAIndex && c.Runtime.Launcher != "uvx" {
		return errors.New("runtime.cuda_index only applies when runtime.launcher is uvx")
	}
	if c.Runtime.RequestTimeoutSeconds < 0 {
		return errors.New("runtime.request_timeout_seconds must be zero or positive")
	}
	if c.Runtime.LoadTimeoutSeconds < 0 {
		return errors.New("runtime.load_timeout_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateVocoder() error {
	if _, err := vocoder.ParseKind(c.Vocoder.Kind); err != nil {
		return fmt.Errorf("vocoder.kind: %w", err)
	}
	if c.Vocoder.SampleRate < 0 {
		return errors.New("vocoder.sample_rate must be zero or positive")
	}
	if c.Vocoder.WaveRNNTarget <= 0 {
		return errors.New("vocoder.wavernn_target must be positive")
	}
	if c.Vocoder.WaveRNNOverlap < 0 || c.Vocoder.WaveRNNOverlap >= c.Vocoder.WaveRNNTarget {
		return errors.New("vocoder.wavernn_overlap must be between 0 and wavernn_target")
	}
	return nil
}

func (c *Config) validateExperiment() error {
	if err := validateLabel("experiment.model_name", c.Experiment.ModelName); err != nil {
		return err
	}
	if c.Experiment.TrainLength != "" {
		if err := validateLabel("experiment.train_length", c.Experiment.TrainLength); err != nil {
			return err
		}
	}
	if c.Experiment.TestSize <= 0 {
		return errors.New("experiment.test_size must be positive")
	}
	switch c.Experiment.DatasetLayout {
	case "speaker_dirs", "prefix":
	default:
		return fmt.Errorf("experiment.dataset_layout: unsupported value %q (want speaker_dirs or prefix)", c.Experiment.DatasetLayout)
	}
	return nil
}

func (c *Config) validateOutput() error {
	if _, err := outputs.ParsePolicy(c.Output.Conflict); err != nil {
		return fmt.Errorf("output.conflict: %w", err)
	}
	if _, err := outputs.ParsePolicy(c.Output.ReconstructionConflict); err != nil {
		return fmt.Errorf("output.reconstruction_conflict: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

// validateLabel rejects values that would escape their directory when used
// as a path component.
func validateLabel(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", field)
	}
	if value == "." || value == ".." || strings.ContainsAny(value, `/\`) {
		return fmt.Errorf("%s must be a single path component, got %q", field, value)
	}
	return nil
}

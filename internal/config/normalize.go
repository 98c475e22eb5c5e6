package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeRuntime(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeModels(); err != nil {
		return err
	}
	if err := c.normalizeExperiment(); err != nil {
		return err
	}
	c.normalizeVocoder()
	c.normalizeOutput()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeRuntime() error {
	c.Runtime.ModelDir = strings.TrimSpace(c.Runtime.ModelDir)
	if value, ok := os.LookupEnv("CROSSVOICE_MODEL_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Runtime.ModelDir = strings.TrimSpace(value)
	}
	if c.Runtime.ModelDir == "" {
		c.Runtime.ModelDir = defaultModelDir
	}
	var err error
	if c.Runtime.ModelDir, err = expandPath(c.Runtime.ModelDir); err != nil {
		return fmt.Errorf("runtime.model_dir: %w", err)
	}

	c.Runtime.Launcher = strings.ToLower(strings.TrimSpace(c.Runtime.Launcher))
	if c.Runtime.Launcher == "" {
		c.Runtime.Launcher = defaultLauncher
	}
	c.Runtime.Python = strings.TrimSpace(c.Runtime.Python)
	if c.Runtime.Python == "" {
		c.Runtime.Python = defaultPython
	}
	if value, ok := os.LookupEnv("CROSSVOICE_DEVICE"); ok && strings.TrimSpace(value) != "" {
		c.Runtime.Device = value
	}
	c.Runtime.Device = strings.ToLower(strings.TrimSpace(c.Runtime.Device))
	if c.Runtime.Device == "" {
		c.Runtime.Device = defaultDevice
	}
	packages := c.Runtime.ExtraPackages[:0]
	for _, pkg := range c.Runtime.ExtraPackages {
		if trimmed := strings.TrimSpace(pkg); trimmed != "" {
			packages = append(packages, trimmed)
		}
	}
	c.Runtime.ExtraPackages = packages
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ExperimentRoot) == "" {
		c.Paths.ExperimentRoot = defaultExperimentRoot
	}
	if c.Paths.ExperimentRoot, err = resolveAgainst(c.Runtime.ModelDir, c.Paths.ExperimentRoot); err != nil {
		return fmt.Errorf("paths.experiment_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeModels() error {
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"models.conversion", &c.Models.Conversion, defaultConversionModel},
		{"models.wavernn", &c.Models.WaveRNN, defaultWaveRNNModel},
		{"models.wavenet", &c.Models.WaveNet, defaultWaveNetModel},
		{"models.speaker_encoder", &c.Models.SpeakerEncoder, defaultEncoderModel},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		resolved, err := resolveAgainst(c.Runtime.ModelDir, *field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = resolved
	}
	return nil
}

func (c *Config) normalizeExperiment() error {
	c.Experiment.ModelName = strings.TrimSpace(c.Experiment.ModelName)
	if c.Experiment.ModelName == "" {
		c.Experiment.ModelName = defaultModelName
	}
	c.Experiment.TrainLength = strings.TrimSpace(c.Experiment.TrainLength)
	c.Experiment.DatasetLayout = strings.ToLower(strings.TrimSpace(c.Experiment.DatasetLayout))
	if c.Experiment.DatasetLayout == "" {
		c.Experiment.DatasetLayout = defaultDatasetLayout
	}
	var err error
	if c.Experiment.Metadata, err = resolveAgainst(c.Runtime.ModelDir, c.Experiment.Metadata); err != nil {
		return fmt.Errorf("experiment.metadata: %w", err)
	}
	if c.Experiment.Dataset, err = resolveAgainst(c.Runtime.ModelDir, c.Experiment.Dataset); err != nil {
		return fmt.Errorf("experiment.dataset: %w", err)
	}
	return nil
}

func (c *Config) normalizeVocoder() {
	c.Vocoder.Kind = strings.ToLower(strings.TrimSpace(c.Vocoder.Kind))
	if c.Vocoder.Kind == "" {
		c.Vocoder.Kind = defaultVocoderKind
	}
}

func (c *Config) normalizeOutput() {
	c.Output.Conflict = strings.ToLower(strings.TrimSpace(c.Output.Conflict))
	if c.Output.Conflict == "" {
		c.Output.Conflict = defaultConflict
	}
	c.Output.ReconstructionConflict = strings.ToLower(strings.TrimSpace(c.Output.ReconstructionConflict))
	if c.Output.ReconstructionConflict == "" {
		c.Output.ReconstructionConflict = defaultReconConflict
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

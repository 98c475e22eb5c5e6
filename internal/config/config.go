package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories crossvoice reads from and writes to.
type Paths struct {
	ExperimentRoot string `toml:"experiment_root"`
	LogDir         string `toml:"log_dir"`
	StateDir       string `toml:"state_dir"`
	WorkDir        string `toml:"work_dir"`
}

// Models contains checkpoint locations. Relative paths resolve against
// runtime.model_dir.
type Models struct {
	Conversion     string `toml:"conversion"`
	WaveRNN        string `toml:"wavernn"`
	WaveNet        string `toml:"wavenet"`
	SpeakerEncoder string `toml:"speaker_encoder"`
}

// Runtime describes how the Python inference bridge is launched.
type Runtime struct {
	// ModelDir is the AutoVC checkout the bridge runs in. It must provide the
	// Generator_autoVC, vocoder, Speaker_encoder and hparams modules.
	ModelDir string `toml:"model_dir"`
	// Launcher is "python" (run Python directly) or "uvx" (ephemeral env).
	Launcher              string   `toml:"launcher"`
	Python                string   `toml:"python"`
	Device                string   `toml:"device"`
	CUDAIndex             bool     `toml:"cuda_index"`
	ExtraPackages         []string `toml:"extra_packages"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	LoadTimeoutSeconds    int      `toml:"load_timeout_seconds"`
}

// Vocoder contains vocoder selection and synthesis settings.
type Vocoder struct {
	Kind           string `toml:"kind"`
	SampleRate     int    `toml:"sample_rate"` // 0 uses the rate reported by the vocoder
	WaveRNNTarget  int    `toml:"wavernn_target"`
	WaveRNNOverlap int    `toml:"wavernn_overlap"`
	WaveRNNMuLaw   bool   `toml:"wavernn_mu_law"`
}

// Embedding contains speaker-embedding checks.
type Embedding struct {
	Dimension int `toml:"dimension"` // 0 disables the dimension check
}

// Experiment contains the inputs of an experiment run.
type Experiment struct {
	ModelName       string `toml:"model_name"`
	Metadata        string `toml:"metadata"`
	Dataset         string `toml:"dataset"`
	DatasetLayout   string `toml:"dataset_layout"`
	TestSize        int    `toml:"test_size"`
	TrainLength     string `toml:"train_length"`
	ContinueOnError bool   `toml:"continue_on_error"`
	Resume          bool   `toml:"resume"`
}

// Output contains the artifact directory and conflict policy.
type Output struct {
	CreateDirs             bool   `toml:"create_dirs"`
	Conflict               string `toml:"conflict"`
	ReconstructionConflict string `toml:"reconstruction_conflict"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"` // per-run log files; 0 keeps them forever
}

// Config encapsulates all configuration values for crossvoice.
//
// Configuration sections by subsystem:
//   - Paths: experiment output root, logs, ledger state, bridge work dir
//   - Models: checkpoint files for the conversion model, vocoders and encoder
//   - Runtime: Python interpreter, launcher and device selection
//   - Vocoder: vocoder kind and synthesis parameters
//   - Embedding: speaker embedding checks
//   - Experiment: metadata table, dataset split and pairing mode
//   - Output: directory creation and conflict handling
//   - Logging: log format, level, and run log retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Models     Models     `toml:"models"`
	Runtime    Runtime    `toml:"runtime"`
	Vocoder    Vocoder    `toml:"vocoder"`
	Embedding  Embedding  `toml:"embedding"`
	Experiment Experiment `toml:"experiment"`
	Output     Output     `toml:"output"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories crossvoice owns. The experiment
// root is left alone; the output policy decides whether it may be created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir, c.Paths.WorkDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the SQLite ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// ModelRoot returns the directory holding every artifact of the configured
// model family, e.g. <experiment_root>/AutoVC.
func (c *Config) ModelRoot() string {
	return filepath.Join(c.Paths.ExperimentRoot, c.Experiment.ModelName)
}

// VocoderCheckpoint returns the checkpoint for the named vocoder kind, or an
// empty string when the kind is not recognized.
func (c *Config) VocoderCheckpoint(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "wavernn":
		return c.Models.WaveRNN
	case "wavenet":
		return c.Models.WaveNet
	default:
		return ""
	}
}

// ResolveModelPath resolves a checkpoint path the same way Load does:
// relative paths are taken against runtime.model_dir.
func (c *Config) ResolveModelPath(pathValue string) (string, error) {
	return resolveAgainst(c.Runtime.ModelDir, pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// resolveAgainst expands pathValue, anchoring relative paths at base.
func resolveAgainst(base, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", nil
	}
	if strings.HasPrefix(pathValue, "~") || filepath.IsAbs(pathValue) || base == "" {
		return expandPath(pathValue)
	}
	return expandPath(filepath.Join(base, pathValue))
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crossvoice/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Checkpoint, metadata and dataset paths point inside the temp tree but are
// not created unless the matching option is given.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ExperimentRoot = filepath.Join(base, "Experiment")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Runtime.ModelDir = filepath.Join(base, "autovc")
	cfgVal.Models.Conversion = filepath.Join(base, "autovc", "Models", "AutoVC", "AutoVC_seed40_200k.pt")
	cfgVal.Models.WaveRNN = filepath.Join(base, "autovc", "Models", "WaveRNN", "WaveRNN_Pretrained.pyt")
	cfgVal.Models.WaveNet = filepath.Join(base, "autovc", "Models", "WaveNet", "WaveNetVC_pretrained.pth")
	cfgVal.Models.SpeakerEncoder = filepath.Join(base, "autovc", "Models", "SpeakerEncoder", "SpeakerEncoder.pt")
	cfgVal.Experiment.Metadata = filepath.Join(base, "data", "persons.csv")
	cfgVal.Experiment.Dataset = filepath.Join(base, "data", "test_data")
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCheckpoints writes placeholder checkpoint files for every model.
func WithCheckpoints() ConfigOption {
	return func(b *configBuilder) {
		for _, path := range []string{b.cfg.Models.Conversion, b.cfg.Models.WaveRNN, b.cfg.Models.WaveNet, b.cfg.Models.SpeakerEncoder} {
			WriteFile(b.t, path, 64)
		}
	}
}

// Speaker is one metadata row plus the number of utterances to generate.
type Speaker struct {
	ID       string
	Gender   string
	Language string
	Samples  int
}

// WithDataset writes the metadata table and a speaker_dirs dataset of short
// tones, <dataset>/<id>/<id>_NNN.wav.
func WithDataset(speakers ...Speaker) ConfigOption {
	return func(b *configBuilder) {
		var rows strings.Builder
		for i, sp := range speakers {
			rows.WriteString(sp.ID + "," + sp.Gender + "," + sp.Language + "\n")
			for n := 1; n <= sp.Samples; n++ {
				name := filepath.Join(b.cfg.Experiment.Dataset, sp.ID, fmt.Sprintf("%s_%03d.wav", sp.ID, n))
				WriteTone(b.t, name, 16000, 220*float64(i+1), 0.1)
			}
		}
		path := b.cfg.Experiment.Metadata
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			b.t.Fatalf("mkdir metadata dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(rows.String()), 0o644); err != nil {
			b.t.Fatalf("write metadata: %v", err)
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. A stub named like runtime.python answers
// "--version" the way CPython does.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Runtime.Python}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\necho \"Python 3.11.9\"\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// Package outputs derives artifact locations inside an experiment tree and
// applies the configured directory and conflict policy to them.
//
// Paths handed out by this package are stems: the waveform writer appends
// the ".wav" extension.
package outputs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	// Extension is appended to every stem when the waveform is written.
	Extension = ".wav"
	// PersonsDir holds per-speaker reconstructions.
	PersonsDir = "persons"

	maxIncrement = 10000
)

// Layout maps jobs onto <experiment_root>/<model_name>/...
type Layout struct {
	Root       string
	CreateDirs bool
}

// NewLayout returns the layout rooted at <experimentRoot>/<modelName>.
func NewLayout(experimentRoot, modelName string, createDirs bool) Layout {
	return Layout{Root: filepath.Join(experimentRoot, modelName), CreateDirs: createDirs}
}

// ConvertedStem is <root>/<task>/<subtask>/<name>, name coming from
// ConvertedName.
func (l Layout) ConvertedStem(task, subtask, name string) string {
	return filepath.Join(l.Root, Component(task), Component(subtask), Component(name))
}

// ReconstructionStem is <root>/persons/<speaker>/<sample>.
func (l Layout) ReconstructionStem(speakerID, samplePath string) string {
	return filepath.Join(l.Root, PersonsDir, Component(speakerID), Base(samplePath))
}

// ConvertedName joins two sample names, e.g. speakerA_001_to_speakerB_002.
// Both names should come from SampleName.
func ConvertedName(sourceName, targetName string) string {
	return sourceName + "_to_" + targetName
}

// SampleName is the base name of path qualified with its speaker id, so
// p225/001.wav and p226/001.wav stay apart. Names that already start with
// "<speaker>_" are returned unchanged.
func SampleName(speaker, path string) string {
	base := Base(path)
	speaker = strings.TrimSpace(speaker)
	if speaker == "" || base == speaker || strings.HasPrefix(base, speaker+"_") {
		return base
	}
	return speaker + "_" + base
}

// Base returns the file name without directory or extension.
func Base(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// SpeakerFromName returns the file name prefix before the first underscore,
// the naming convention used by the VCTK-style datasets the models were
// trained on.
func SpeakerFromName(path string) string {
	base := Base(path)
	if idx := strings.Index(base, "_"); idx > 0 {
		return base[:idx]
	}
	return base
}

// Component makes a label safe to use as a single directory name.
func Component(label string) string {
	label = strings.TrimSpace(label)
	replacer := strings.NewReplacer("/", "-", `\`, "-")
	label = replacer.Replace(label)
	switch label {
	case "", ".", "..":
		return "_"
	}
	return label
}

// Claim is the outcome of resolving a stem against the filesystem.
type Claim struct {
	// Stem is the path to synthesize to, without extension.
	Stem string
	// Skip is set when the artifact exists and the policy keeps it.
	Skip bool
}

// Path returns the final file path of the claim.
func (c Claim) Path() string { return c.Stem + Extension }

// Claim prepares the directory of stem and applies policy when
// <stem>.wav already exists. Paths listed in reclaim belong to the caller,
// typically left by an unfinished earlier attempt, and count as free.
func (l Layout) Claim(stem string, policy Policy, reclaim ...string) (Claim, error) {
	if err := l.ensureDir(filepath.Dir(stem)); err != nil {
		return Claim{}, err
	}
	taken := func(path string) (bool, error) {
		if slices.Contains(reclaim, path) {
			return false, nil
		}
		return fileExists(path)
	}
	exists, err := taken(stem + Extension)
	if err != nil {
		return Claim{}, err
	}
	if !exists {
		return Claim{Stem: stem}, nil
	}
	switch policy {
	case PolicyOverwrite:
		return Claim{Stem: stem}, nil
	case PolicySkip:
		return Claim{Stem: stem, Skip: true}, nil
	case PolicyIncrement:
		for n := 2; n <= maxIncrement; n++ {
			candidate := stem + "_" + strconv.Itoa(n)
			used, err := taken(candidate + Extension)
			if err != nil {
				return Claim{}, err
			}
			if !used {
				return Claim{Stem: candidate}, nil
			}
		}
		return Claim{}, fmt.Errorf("%w: %s (no free suffix up to %d)", ErrExists, stem+Extension, maxIncrement)
	case PolicyFail:
		return Claim{}, fmt.Errorf("%w: %s", ErrExists, stem+Extension)
	default:
		return Claim{}, fmt.Errorf("%w %q", ErrUnknownPolicy, policy)
	}
}

func (l Layout) ensureDir(dir string) error {
	if l.CreateDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %q: %w", dir, err)
		}
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingDir, dir)
		}
		return fmt.Errorf("stat output directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path %q is not a directory", dir)
	}
	return nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return false, fmt.Errorf("artifact path %q is a directory", path)
		}
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat artifact %q: %w", path, err)
}

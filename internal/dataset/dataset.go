// Package dataset loads labeled audio samples from disk and splits them into
// train and test portions per speaker.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"crossvoice/internal/outputs"
)

var (
	// ErrEmpty is returned when the dataset directory holds no audio samples.
	ErrEmpty = errors.New("dataset contains no audio samples")
	// ErrUnknownLayout is returned for unrecognized layout names.
	ErrUnknownLayout = errors.New("unknown dataset layout")
)

// Layout describes how speaker labels are encoded on disk.
type Layout string

const (
	// LayoutSpeakerDirs expects <root>/<speaker>/<sample>.wav.
	LayoutSpeakerDirs Layout = "speaker_dirs"
	// LayoutPrefix expects <root>/<speaker>_<rest>.wav.
	LayoutPrefix Layout = "prefix"
)

var audioExtensions = map[string]struct{}{
	".wav":  {},
	".flac": {},
}

// ParseLayout converts a config value into a Layout.
func ParseLayout(value string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(value))) {
	case LayoutSpeakerDirs:
		return LayoutSpeakerDirs, nil
	case LayoutPrefix:
		return LayoutPrefix, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownLayout, value)
	}
}

// Sample is one labeled audio file.
type Sample struct {
	Path    string
	Speaker string
}

// Split holds the train and test portions. Both are grouped by speaker in
// speaker-name order, with files in name order inside each group.
type Split struct {
	Train []Sample
	Test  []Sample
}

// Speakers returns the distinct speakers of samples in first-seen order.
func Speakers(samples []Sample) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range samples {
		if _, ok := seen[s.Speaker]; ok {
			continue
		}
		seen[s.Speaker] = struct{}{}
		out = append(out, s.Speaker)
	}
	return out
}

// Load reads every audio sample below root and splits it. The last testSize
// files of each speaker form the test split; speakers with testSize files or
// fewer contribute everything to the test split.
func Load(root string, layout Layout, testSize int) (Split, error) {
	if testSize <= 0 {
		return Split{}, fmt.Errorf("test size must be positive, got %d", testSize)
	}
	info, err := os.Stat(root)
	if err != nil {
		return Split{}, fmt.Errorf("open dataset: %w", err)
	}
	if !info.IsDir() {
		return Split{}, fmt.Errorf("dataset %s is not a directory", root)
	}

	var groups map[string][]string
	switch layout {
	case LayoutSpeakerDirs:
		groups, err = scanSpeakerDirs(root)
	case LayoutPrefix:
		groups, err = scanPrefixed(root)
	default:
		return Split{}, fmt.Errorf("%w %q", ErrUnknownLayout, layout)
	}
	if err != nil {
		return Split{}, err
	}
	if len(groups) == 0 {
		return Split{}, fmt.Errorf("%w: %s", ErrEmpty, root)
	}

	speakers := make([]string, 0, len(groups))
	for speaker := range groups {
		speakers = append(speakers, speaker)
	}
	sort.Strings(speakers)

	var split Split
	for _, speaker := range speakers {
		files := groups[speaker]
		sort.Strings(files)
		cut := len(files) - testSize
		if cut < 0 {
			cut = 0
		}
		for i, path := range files {
			sample := Sample{Path: path, Speaker: speaker}
			if i < cut {
				split.Train = append(split.Train, sample)
			} else {
				split.Test = append(split.Test, sample)
			}
		}
	}
	return split, nil
}

func scanSpeakerDirs(root string) (map[string][]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list dataset: %w", err)
	}
	groups := make(map[string][]string)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		files, err := audioFiles(dir)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			groups[entry.Name()] = files
		}
	}
	return groups, nil
}

func scanPrefixed(root string) (map[string][]string, error) {
	files, err := audioFiles(root)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]string)
	for _, path := range files {
		speaker := outputs.SpeakerFromName(path)
		groups[speaker] = append(groups[speaker], path)
	}
	return groups, nil
}

func audioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

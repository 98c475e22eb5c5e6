// Package melspec extracts mel spectrograms with the recipe a vocoder family
// was trained on, and checks the result before it reaches a model.
package melspec

import (
	"context"
	"errors"
	"fmt"
	"math"

	"crossvoice/internal/inference"
	"crossvoice/internal/vocoder"
)

// Convention is the mel recipe. See vocoder.Kind.Convention.
type Convention = vocoder.Convention

var (
	// ErrNoFrames is returned for a mel with zero time steps.
	ErrNoFrames = errors.New("mel spectrogram has no frames")
	// ErrRagged is returned when frames disagree on the band count.
	ErrRagged = errors.New("mel spectrogram frames have inconsistent band counts")
	// ErrNotFinite is returned when a value is NaN or Inf.
	ErrNotFinite = errors.New("mel spectrogram contains non-finite values")
	// ErrUnknownConvention is returned for an unsupported recipe.
	ErrUnknownConvention = errors.New("unknown mel convention")
)

// Extractor turns audio files into tagged mel matrices.
type Extractor struct {
	backend    inference.MelBackend
	convention Convention
}

// New returns an Extractor for one convention.
func New(backend inference.MelBackend, convention Convention) (*Extractor, error) {
	switch convention {
	case vocoder.ConventionWaveRNN, vocoder.ConventionAutoVC:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownConvention, convention)
	}
	return &Extractor{backend: backend, convention: convention}, nil
}

// Convention returns the recipe this extractor uses.
func (e *Extractor) Convention() Convention { return e.convention }

// Extract returns the time x band mel matrix of the file at path.
func (e *Extractor) Extract(ctx context.Context, path string) (inference.Mel, error) {
	mel, err := e.backend.Mel(ctx, path, e.convention)
	if err != nil {
		return inference.Mel{}, fmt.Errorf("mel %s: %w", path, err)
	}
	mel.Convention = e.convention
	if err := Validate(mel); err != nil {
		return inference.Mel{}, fmt.Errorf("mel %s: %w", path, err)
	}
	return mel, nil
}

// Validate checks that mel is a non-empty rectangular matrix of finite values.
func Validate(mel inference.Mel) error {
	if len(mel.Frames) == 0 {
		return ErrNoFrames
	}
	bands := len(mel.Frames[0])
	if bands == 0 {
		return fmt.Errorf("%w: frame 0 is empty", ErrRagged)
	}
	for i, frame := range mel.Frames {
		if len(frame) != bands {
			return fmt.Errorf("%w: frame %d has %d bands, frame 0 has %d", ErrRagged, i, len(frame), bands)
		}
		for _, v := range frame {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return fmt.Errorf("%w: frame %d", ErrNotFinite, i)
			}
		}
	}
	return nil
}

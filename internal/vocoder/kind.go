// Package vocoder names the supported vocoder families and the mel feature
// convention each one was trained on.
package vocoder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a vocoder selector is not recognized.
var ErrUnknownKind = errors.New("unknown vocoder kind")

// Kind selects a vocoder family.
type Kind string

const (
	// WaveRNN is the autoregressive MOL WaveRNN vocoder.
	WaveRNN Kind = "wavernn"
	// WaveNet is the WaveNet vocoder shipped with AutoVC.
	WaveNet Kind = "wavenet"
)

// Convention identifies a mel-spectrogram extraction recipe. Features from
// one convention are not valid input for a vocoder trained on the other.
type Convention string

const (
	ConventionWaveRNN Convention = "wavernn"
	ConventionAutoVC  Convention = "autovc"
)

// Kinds lists every supported vocoder kind.
func Kinds() []Kind {
	return []Kind{WaveRNN, WaveNet}
}

// ParseKind converts a selector into a Kind. Matching ignores case and
// surrounding whitespace.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case WaveRNN:
		return WaveRNN, nil
	case WaveNet:
		return WaveNet, nil
	default:
		return "", fmt.Errorf("%w %q (supported: %s, %s)", ErrUnknownKind, value, WaveRNN, WaveNet)
	}
}

func (k Kind) String() string { return string(k) }

// Convention returns the mel convention the vocoder expects.
func (k Kind) Convention() Convention {
	if k == WaveNet {
		return ConventionAutoVC
	}
	return ConventionWaveRNN
}

// CheckpointKey is the state-dict key holding conversion model weights in
// checkpoints trained alongside this vocoder.
func (k Kind) CheckpointKey() string {
	if k == WaveNet {
		return "model"
	}
	return "model_state"
}

func (c Convention) String() string { return string(c) }

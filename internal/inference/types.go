package inference

import (
	"context"

	"crossvoice/internal/vocoder"
)

// Mel is a time x mel-band matrix tagged with the extraction recipe that
// produced it.
type Mel struct {
	Frames     [][]float32
	Convention vocoder.Convention
}

// Len returns the number of frames.
func (m Mel) Len() int { return len(m.Frames) }

// Bands returns the band count of the first frame, or 0 for an empty mel.
func (m Mel) Bands() int {
	if len(m.Frames) == 0 {
		return 0
	}
	return len(m.Frames[0])
}

// Embedding is a speaker identity vector.
type Embedding []float32

// Waveform is mono PCM in the range [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// ConversionModel maps mel features from one speaker identity to another.
type ConversionModel interface {
	Convert(ctx context.Context, mel Mel, source, target Embedding) (Mel, error)
}

// Vocoder synthesizes audio from mel features.
type Vocoder interface {
	Synthesize(ctx context.Context, mel Mel) (Waveform, error)
}

// SpeakerEncoder embeds the utterance stored at path.
type SpeakerEncoder interface {
	Embed(ctx context.Context, path string) (Embedding, error)
}

// MelBackend extracts mel features from the audio file at path.
type MelBackend interface {
	Mel(ctx context.Context, path string, convention vocoder.Convention) (Mel, error)
}

// Package embedding produces speaker identity vectors through an injected
// speaker encoder.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"crossvoice/internal/inference"
	"crossvoice/internal/logging"
)

var (
	// ErrEmpty is returned when the encoder yields a zero-length vector.
	ErrEmpty = errors.New("empty speaker embedding")
	// ErrDimension is returned when the vector length differs from the
	// configured dimension.
	ErrDimension = errors.New("speaker embedding dimension mismatch")
	// ErrNotFinite is returned for vectors containing NaN or Inf.
	ErrNotFinite = errors.New("speaker embedding contains non-finite values")
)

// Embedder wraps a speaker encoder with output validation. It does not
// cache: every call re-embeds the file.
type Embedder struct {
	encoder   inference.SpeakerEncoder
	dimension int
	logger    *slog.Logger
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithDimension makes Embed reject vectors of any other length.
func WithDimension(n int) Option {
	return func(e *Embedder) { e.dimension = n }
}

// New returns an Embedder backed by encoder.
func New(encoder inference.SpeakerEncoder, logger *slog.Logger, opts ...Option) *Embedder {
	e := &Embedder{
		encoder: encoder,
		logger:  logging.NewComponentLogger(logger, "embedding"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns the speaker embedding of the utterance at path.
func (e *Embedder) Embed(ctx context.Context, path string) (inference.Embedding, error) {
	start := time.Now()
	vec, err := e.encoder.Embed(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", path, err)
	}
	if err := e.validate(vec); err != nil {
		return nil, fmt.Errorf("embed %s: %w", path, err)
	}
	e.logger.Debug("speaker embedded",
		logging.String(logging.FieldPath, path),
		logging.Int("dimension", len(vec)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return vec, nil
}

func (e *Embedder) validate(vec inference.Embedding) error {
	if len(vec) == 0 {
		return ErrEmpty
	}
	if e.dimension > 0 && len(vec) != e.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), e.dimension)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: index %d", ErrNotFinite, i)
		}
	}
	return nil
}

// Similarity returns the cosine similarity of a and b. Vectors of different
// length or with zero norm yield 0.
func Similarity(a, b inference.Embedding) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	x, y := widen(a), widen(b)
	na, nb := floats.Norm(x, 2), floats.Norm(y, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(x, y) / (na * nb)
}

// Stats summarizes a vector for display.
type Stats struct {
	Dimension int     `json:"dimension"`
	Norm      float64 `json:"norm"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
}

// Describe computes Stats for vec.
func Describe(vec inference.Embedding) Stats {
	if len(vec) == 0 {
		return Stats{}
	}
	x := widen(vec)
	return Stats{
		Dimension: len(x),
		Norm:      floats.Norm(x, 2),
		Min:       floats.Min(x),
		Max:       floats.Max(x),
		Mean:      floats.Sum(x) / float64(len(x)),
	}
}

func widen(v inference.Embedding) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

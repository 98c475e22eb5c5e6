// Package waveform runs mel features through a vocoder and writes the result
// as 16-bit mono PCM WAV.
package waveform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"crossvoice/internal/inference"
	"crossvoice/internal/logging"
	"crossvoice/internal/outputs"
	"crossvoice/internal/vocoder"
)

const (
	bitDepth    = 16
	numChannels = 1
	pcmFormat   = 1
)

var (
	// ErrConventionMismatch is returned when a mel was extracted with a
	// recipe the vocoder was not trained on.
	ErrConventionMismatch = errors.New("mel convention does not match vocoder")
	// ErrEmptyWaveform is returned when the vocoder produces no samples.
	ErrEmptyWaveform = errors.New("vocoder produced no samples")
)

// Generator synthesizes and writes audio for one vocoder.
type Generator struct {
	vocoder    inference.Vocoder
	kind       vocoder.Kind
	sampleRate int
	logger     *slog.Logger
}

// New returns a Generator. A sampleRate of 0 uses the rate the vocoder
// reports.
func New(v inference.Vocoder, kind vocoder.Kind, sampleRate int, logger *slog.Logger) *Generator {
	return &Generator{
		vocoder:    v,
		kind:       kind,
		sampleRate: sampleRate,
		logger:     logging.NewComponentLogger(logger, "waveform"),
	}
}

// Generate synthesizes mel and writes it to <stem>.wav, returning the path.
func (g *Generator) Generate(ctx context.Context, mel inference.Mel, stem string) (string, error) {
	if want := g.kind.Convention(); mel.Convention != want {
		return "", fmt.Errorf("%w: %s vocoder needs %s mel, got %q", ErrConventionMismatch, g.kind, want, mel.Convention)
	}
	start := time.Now()
	wave, err := g.vocoder.Synthesize(ctx, mel)
	if err != nil {
		return "", fmt.Errorf("synthesize %s: %w", filepath.Base(stem), err)
	}
	if len(wave.Samples) == 0 {
		return "", fmt.Errorf("synthesize %s: %w", filepath.Base(stem), ErrEmptyWaveform)
	}
	rate := g.sampleRate
	if rate <= 0 {
		rate = wave.SampleRate
	}
	if rate <= 0 {
		return "", fmt.Errorf("synthesize %s: no sample rate configured or reported", filepath.Base(stem))
	}

	path := stem + outputs.Extension
	clipped, err := Write(path, wave.Samples, rate)
	if err != nil {
		return "", err
	}
	if clipped > 0 {
		g.logger.Debug("samples clipped", logging.String(logging.FieldPath, path), logging.Int("count", clipped))
	}
	g.logger.Debug("waveform written",
		logging.String(logging.FieldPath, path),
		logging.Int("samples", len(wave.Samples)),
		logging.Int("sample_rate", rate),
		logging.Duration("elapsed", time.Since(start)),
	)
	return path, nil
}

// Write stores samples as 16-bit mono PCM at path. The file is written next
// to its destination and renamed into place. It returns the number of
// samples that were clipped to [-1, 1].
func Write(path string, samples []float32, sampleRate int) (int, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp wav: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	data, clipped := quantize(samples)
	enc := wav.NewEncoder(tmp, sampleRate, bitDepth, numChannels, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		cleanup()
		return 0, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("finalize wav: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("sync wav: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("close wav: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("move wav into place: %w", err)
	}
	return clipped, nil
}

func quantize(samples []float32) ([]int, int) {
	out := make([]int, len(samples))
	clipped := 0
	for i, s := range samples {
		v := float64(s)
		switch {
		case math.IsNaN(v):
			v = 0
			clipped++
		case v > 1:
			v = 1
			clipped++
		case v < -1:
			v = -1
			clipped++
		}
		out[i] = int(math.Round(v * math.MaxInt16))
	}
	return out, clipped
}

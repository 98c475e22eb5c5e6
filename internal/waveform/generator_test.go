package waveform_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"crossvoice/internal/inference"
	"crossvoice/internal/logging"
	"crossvoice/internal/vocoder"
	"crossvoice/internal/waveform"
)

type fakeVocoder struct {
	samples []float32
	rate    int
	got     []inference.Mel
}

func (f *fakeVocoder) Synthesize(_ context.Context, mel inference.Mel) (inference.Waveform, error) {
	f.got = append(f.got, mel)
	return inference.Waveform{Samples: f.samples, SampleRate: f.rate}, nil
}

// readSamples decodes a mono 16-bit WAV into [-1, 1] samples.
func readSamples(t *testing.T, path string) []float32 {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / (1 << 15)
	}
	return out
}

func TestGenerateWritesClippedWAV(t *testing.T) {
	voc := &fakeVocoder{samples: []float32{0, 0.5, -0.5, 2, -3}, rate: 22050}
	gen := waveform.New(voc, vocoder.WaveRNN, 0, logging.NewNop())
	stem := filepath.Join(t.TempDir(), "p225_001_to_p226_002")

	mel := inference.Mel{Frames: [][]float32{{1}}, Convention: vocoder.ConventionWaveRNN}
	path, err := gen.Generate(context.Background(), mel, stem)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if path != stem+".wav" {
		t.Fatalf("unexpected path %q", path)
	}

	info, err := waveform.Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.SampleRate != 22050 || info.Channels != 1 || info.BitDepth != 16 || info.Frames != 5 {
		t.Fatalf("unexpected wav info %+v", info)
	}

	samples := readSamples(t, path)
	want := []float32{0, 0.5, -0.5, 1, -1}
	for i := range want {
		if math.Abs(float64(samples[i]-want[i])) > 1e-3 {
			t.Fatalf("sample %d = %f, want %f", i, samples[i], want[i])
		}
	}

	entries, err := os.ReadDir(filepath.Dir(stem))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the final wav, found %d entries", len(entries))
	}
}

func TestGenerateUsesConfiguredRate(t *testing.T) {
	voc := &fakeVocoder{samples: []float32{0.1}, rate: 22050}
	gen := waveform.New(voc, vocoder.WaveNet, 16000, nil)
	stem := filepath.Join(t.TempDir(), "out")
	path, err := gen.Generate(context.Background(), inference.Mel{Frames: [][]float32{{1}}, Convention: vocoder.ConventionAutoVC}, stem)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	info, err := waveform.Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Fatalf("expected configured rate, got %d", info.SampleRate)
	}
}

func TestGenerateRejectsConventionMismatch(t *testing.T) {
	voc := &fakeVocoder{samples: []float32{0}, rate: 16000}
	gen := waveform.New(voc, vocoder.WaveNet, 0, nil)
	mel := inference.Mel{Frames: [][]float32{{1}}, Convention: vocoder.ConventionWaveRNN}
	_, err := gen.Generate(context.Background(), mel, filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, waveform.ErrConventionMismatch) {
		t.Fatalf("expected ErrConventionMismatch, got %v", err)
	}
	if len(voc.got) != 0 {
		t.Fatal("vocoder must not run on a mismatched mel")
	}
}

func TestGenerateRejectsEmptyWaveform(t *testing.T) {
	gen := waveform.New(&fakeVocoder{rate: 16000}, vocoder.WaveRNN, 0, nil)
	mel := inference.Mel{Frames: [][]float32{{1}}, Convention: vocoder.ConventionWaveRNN}
	if _, err := gen.Generate(context.Background(), mel, filepath.Join(t.TempDir(), "x")); !errors.Is(err, waveform.ErrEmptyWaveform) {
		t.Fatalf("expected ErrEmptyWaveform, got %v", err)
	}
}

func TestProbeRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.wav")
	if err := os.WriteFile(path, []byte("not audio at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := waveform.Probe(path); !errors.Is(err, waveform.ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV, got %v", err)
	}
}

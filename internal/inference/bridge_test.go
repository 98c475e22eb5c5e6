package inference

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"crossvoice/internal/logging"
	"crossvoice/internal/vocoder"
)

type fakeProc struct {
	mu       sync.Mutex
	requests []request
	killed   bool
	reqR     *io.PipeReader
	respW    *io.PipeWriter
}

func (p *fakeProc) record(req request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
}

func (p *fakeProc) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.requests))
	for _, req := range p.requests {
		out = append(out, req.Op)
	}
	return out
}

func (p *fakeProc) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// newFakeSession wires a Session to an in-process server. A handler that
// returns nil leaves the request unanswered.
func newFakeSession(t *testing.T, handle func(p *fakeProc, req request) *response) (*Session, *fakeProc) {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	proc := &fakeProc{reqR: reqR, respW: respW}
	kill := func() error {
		proc.mu.Lock()
		proc.killed = true
		proc.mu.Unlock()
		reqR.Close()
		respW.Close()
		return nil
	}
	s := newSession(respR, reqW, nil, kill, nil, logging.NewNop())

	go func() {
		dec := msgpack.NewDecoder(reqR)
		enc := msgpack.NewEncoder(respW)
		for {
			var req request
			if err := dec.Decode(&req); err != nil {
				return
			}
			proc.record(req)
			if req.Op == opShutdown {
				_ = enc.Encode(&response{ID: req.ID, OK: true})
				respW.Close()
				return
			}
			resp := handle(proc, req)
			if resp == nil {
				continue
			}
			resp.ID = req.ID
			if err := enc.Encode(resp); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { _ = s.Close() })
	return s, proc
}

func encodeSamples(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func echoHandler(_ *fakeProc, req request) *response {
	switch req.Op {
	case opMel:
		if req.Convention == "autovc" {
			return &response{OK: true, Mel: [][]float32{{1, 2}, {3, 4}, {5, 6}}}
		}
		return &response{OK: true, Mel: [][]float32{{0.5, 0.25}}}
	case opEmbed:
		return &response{OK: true, Embedding: []float32{0.1, 0.2, float32(len(req.Path))}}
	case opConvert:
		out := make([][]float32, len(req.Mel))
		for i, frame := range req.Mel {
			out[i] = make([]float32, len(frame))
			for j, v := range frame {
				out[i][j] = v + req.Target[0]
			}
		}
		return &response{OK: true, Mel: out}
	case opGenerate:
		return &response{OK: true, Samples: encodeSamples([]float32{0, 0.5, -1.5}), SampleRate: 16000}
	case opLoad:
		return &response{OK: true, Device: "cpu", SampleRate: 22050}
	default:
		return &response{OK: false, Error: "unknown op " + req.Op, ErrorType: "ValueError"}
	}
}

func TestModelsRoundTripEachOp(t *testing.T) {
	s, proc := newFakeSession(t, echoHandler)
	m := &Models{session: s, kind: vocoder.WaveNet, device: "cpu", sampleRate: 22050}
	ctx := context.Background()

	mel, err := m.Mel().Mel(ctx, "/data/p225_001.wav", vocoder.ConventionAutoVC)
	if err != nil {
		t.Fatalf("Mel: %v", err)
	}
	if mel.Len() != 3 || mel.Bands() != 2 || mel.Convention != vocoder.ConventionAutoVC {
		t.Fatalf("unexpected mel %+v", mel)
	}

	emb, err := m.Encoder().Embed(ctx, "abc")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(emb) != 3 || emb[2] != 3 {
		t.Fatalf("unexpected embedding %v", emb)
	}

	converted, err := m.Converter().Convert(ctx, mel, Embedding{0}, Embedding{10})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if converted.Frames[2][1] != 16 || converted.Convention != vocoder.ConventionAutoVC {
		t.Fatalf("unexpected converted mel %+v", converted)
	}

	wave, err := m.Vocoder().Synthesize(ctx, converted)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if wave.SampleRate != 16000 || len(wave.Samples) != 3 || wave.Samples[2] != -1.5 {
		t.Fatalf("unexpected waveform %+v", wave)
	}

	got := strings.Join(proc.ops(), ",")
	if got != "mel,embed,convert,generate" {
		t.Fatalf("unexpected op sequence %s", got)
	}
}

func TestBridgeErrorIsTyped(t *testing.T) {
	s, _ := newFakeSession(t, func(_ *fakeProc, req request) *response {
		return &response{OK: false, Error: "No such file", ErrorType: "FileNotFoundError"}
	})
	m := &Models{session: s, kind: vocoder.WaveRNN}
	_, err := m.Encoder().Embed(context.Background(), "missing.wav")
	var bridgeErr *BridgeError
	if !errors.As(err, &bridgeErr) {
		t.Fatalf("expected BridgeError, got %v", err)
	}
	if bridgeErr.Op != opEmbed || bridgeErr.Type != "FileNotFoundError" {
		t.Fatalf("unexpected bridge error %+v", bridgeErr)
	}
	// The session survives a request-level failure.
	if _, err := m.Encoder().Embed(context.Background(), "again.wav"); !errors.As(err, &bridgeErr) {
		t.Fatalf("expected second BridgeError, got %v", err)
	}
}

func TestCancelledCallKillsProcess(t *testing.T) {
	s, proc := newFakeSession(t, func(_ *fakeProc, req request) *response { return nil })
	m := &Models{session: s, kind: vocoder.WaveRNN}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := m.Mel().Mel(ctx, "slow.wav", vocoder.ConventionWaveRNN)
		errCh <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(proc.ops()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return after cancel")
	}
	if !proc.wasKilled() {
		t.Fatal("expected process to be killed")
	}
	if _, err := m.Encoder().Embed(context.Background(), "x.wav"); !errors.Is(err, ErrBridgeClosed) {
		t.Fatalf("expected ErrBridgeClosed after kill, got %v", err)
	}
}

func TestRequestTimeoutKillsProcess(t *testing.T) {
	s, proc := newFakeSession(t, func(_ *fakeProc, req request) *response { return nil })
	m := &Models{session: s, kind: vocoder.WaveRNN, requestTimeout: 20 * time.Millisecond}
	_, err := m.Vocoder().Synthesize(context.Background(), Mel{Frames: [][]float32{{1}}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !proc.wasKilled() {
		t.Fatal("expected process to be killed")
	}
}

func TestCrashReportsStderrTail(t *testing.T) {
	s, _ := newFakeSession(t, func(p *fakeProc, req request) *response {
		p.respW.Close()
		return nil
	})
	if _, err := s.stderr.Write([]byte("Traceback (most recent call last):\nRuntimeError: CUDA out of memory\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	m := &Models{session: s, kind: vocoder.WaveRNN}
	_, err := m.Encoder().Embed(context.Background(), "x.wav")
	if !errors.Is(err, ErrBridgeClosed) {
		t.Fatalf("expected ErrBridgeClosed, got %v", err)
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
}

func TestCloseSendsShutdown(t *testing.T) {
	s, proc := newFakeSession(t, echoHandler)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ops := proc.ops(); len(ops) != 1 || ops[0] != opShutdown {
		t.Fatalf("expected shutdown request, got %v", ops)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func writeCheckpoints(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 3)
	for i, name := range []string{"autovc.pt", "vocoder.pyt", "encoder.pt"} {
		paths[i] = filepath.Join(dir, name)
		if err := os.WriteFile(paths[i], []byte("ckpt"), 0o644); err != nil {
			t.Fatalf("write checkpoint: %v", err)
		}
	}
	return paths[0], paths[1], paths[2]
}

func stubStart(t *testing.T, fn func(context.Context, LaunchOptions, *slog.Logger) (*Session, error)) {
	t.Helper()
	orig := startSession
	startSession = fn
	t.Cleanup(func() { startSession = orig })
}

func TestLoadRejectsUnknownKindBeforeStart(t *testing.T) {
	started := false
	stubStart(t, func(context.Context, LaunchOptions, *slog.Logger) (*Session, error) {
		started = true
		return nil, errors.New("should not start")
	})
	conv, voc, enc := writeCheckpoints(t)
	_, err := Load(context.Background(), Options{
		Vocoder:              vocoder.Kind("griffinlim"),
		ConversionCheckpoint: conv,
		VocoderCheckpoint:    voc,
		EncoderCheckpoint:    enc,
	})
	if !errors.Is(err, vocoder.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if started {
		t.Fatal("bridge must not start for an unknown vocoder kind")
	}
}

func TestLoadRejectsMissingCheckpoint(t *testing.T) {
	started := false
	stubStart(t, func(context.Context, LaunchOptions, *slog.Logger) (*Session, error) {
		started = true
		return nil, errors.New("should not start")
	})
	conv, _, enc := writeCheckpoints(t)
	_, err := Load(context.Background(), Options{
		Vocoder:              vocoder.WaveRNN,
		ConversionCheckpoint: conv,
		VocoderCheckpoint:    filepath.Join(t.TempDir(), "missing.pyt"),
		EncoderCheckpoint:    enc,
	})
	if !errors.Is(err, ErrCheckpointMissing) {
		t.Fatalf("expected ErrCheckpointMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing.pyt") {
		t.Fatalf("expected error to name the file, got %v", err)
	}
	if started {
		t.Fatal("bridge must not start when a checkpoint is missing")
	}

	_, err = Load(context.Background(), Options{
		Vocoder:              vocoder.WaveRNN,
		ConversionCheckpoint: t.TempDir(),
		VocoderCheckpoint:    conv,
		EncoderCheckpoint:    enc,
	})
	if !errors.Is(err, ErrCheckpointMissing) {
		t.Fatalf("expected directory checkpoint to be rejected, got %v", err)
	}
}

func TestLoadSendsCheckpointsAndReportsDevice(t *testing.T) {
	s, proc := newFakeSession(t, echoHandler)
	stubStart(t, func(context.Context, LaunchOptions, *slog.Logger) (*Session, error) { return s, nil })
	conv, voc, enc := writeCheckpoints(t)

	models, err := Load(context.Background(), Options{
		Vocoder:              vocoder.Kind("WaveNet"),
		ConversionCheckpoint: conv,
		VocoderCheckpoint:    voc,
		EncoderCheckpoint:    enc,
		WaveRNNTarget:        11000,
		WaveRNNOverlap:       550,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if models.Kind() != vocoder.WaveNet || models.Device() != "cpu" || models.SampleRate() != 22050 {
		t.Fatalf("unexpected models: kind=%s device=%s rate=%d", models.Kind(), models.Device(), models.SampleRate())
	}

	proc.mu.Lock()
	load := proc.requests[0].Load
	proc.mu.Unlock()
	if load == nil {
		t.Fatal("expected load parameters")
	}
	if load.Kind != "wavenet" || load.CheckpointKey != "model" || load.Device != "auto" {
		t.Fatalf("unexpected load params %+v", load)
	}
	if load.Conversion != conv || load.Vocoder != voc || load.Encoder != enc {
		t.Fatalf("unexpected checkpoint paths %+v", load)
	}
	if err := models.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLoadFailureClosesBridge(t *testing.T) {
	s, proc := newFakeSession(t, func(_ *fakeProc, req request) *response {
		return &response{OK: false, Error: "invalid load key, 'v'.", ErrorType: "UnpicklingError"}
	})
	stubStart(t, func(context.Context, LaunchOptions, *slog.Logger) (*Session, error) { return s, nil })
	conv, voc, enc := writeCheckpoints(t)
	_, err := Load(context.Background(), Options{
		Vocoder:              vocoder.WaveRNN,
		ConversionCheckpoint: conv,
		VocoderCheckpoint:    voc,
		EncoderCheckpoint:    enc,
	})
	var bridgeErr *BridgeError
	if !errors.As(err, &bridgeErr) || bridgeErr.Op != opLoad {
		t.Fatalf("expected load BridgeError, got %v", err)
	}
	if ops := proc.ops(); len(ops) != 2 || ops[1] != opShutdown {
		t.Fatalf("expected shutdown after failed load, got %v", ops)
	}
}

func TestDecodeSamplesRejectsMisalignedPayload(t *testing.T) {
	if _, err := decodeSamples([]byte{1, 2, 3}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestLaunchCommand(t *testing.T) {
	name, args, err := LaunchOptions{Launcher: "python", Python: "/usr/bin/python3.11"}.command("/tmp/b.py")
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if name != "/usr/bin/python3.11" || strings.Join(args, " ") != "-u /tmp/b.py" {
		t.Fatalf("unexpected python command %s %v", name, args)
	}

	name, args, err = LaunchOptions{Launcher: "uvx", CUDAIndex: true, ExtraPackages: []string{"resemblyzer"}}.command("/tmp/b.py")
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	joined := strings.Join(args, " ")
	if name != "uvx" {
		t.Fatalf("unexpected launcher %s", name)
	}
	for _, want := range []string{"--refresh", "--with torch", "--with msgpack", "--with resemblyzer", "--index-url " + cudaIndexURL} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %s", want, joined)
		}
	}
	if !strings.HasSuffix(joined, "python -u /tmp/b.py") {
		t.Fatalf("unexpected uvx tail: %s", joined)
	}

	if _, _, err := (LaunchOptions{Launcher: "conda"}).command("/tmp/b.py"); err == nil {
		t.Fatal("expected unsupported launcher error")
	}
}

func TestWriteScript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	path, err := writeScript(dir)
	if err != nil {
		t.Fatalf("writeScript: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	if !strings.Contains(string(data), "def op_generate") {
		t.Fatal("expected embedded bridge script")
	}
}

package inference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"crossvoice/internal/logging"
	"crossvoice/internal/vocoder"
)

// Options configures Load.
type Options struct {
	Vocoder vocoder.Kind

	ConversionCheckpoint string
	VocoderCheckpoint    string
	EncoderCheckpoint    string

	// Device is "auto", "cuda" or "cpu".
	Device string

	WaveRNNTarget  int
	WaveRNNOverlap int
	WaveRNNMuLaw   bool

	Launch LaunchOptions

	LoadTimeout    time.Duration
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// startSession is replaced in tests.
var startSession = Start

// Models holds the loaded networks. All handles share one bridge process.
type Models struct {
	session        *Session
	kind           vocoder.Kind
	device         string
	sampleRate     int
	requestTimeout time.Duration
}

// Load validates opts, starts the bridge and loads every network onto one
// device. The vocoder kind and checkpoint files are checked before any
// process is started.
func Load(ctx context.Context, opts Options) (*Models, error) {
	kind, err := vocoder.ParseKind(string(opts.Vocoder))
	if err != nil {
		return nil, err
	}
	checkpoints := []struct {
		role string
		path string
	}{
		{"conversion model", opts.ConversionCheckpoint},
		{kind.String() + " vocoder", opts.VocoderCheckpoint},
		{"speaker encoder", opts.EncoderCheckpoint},
	}
	for _, ckpt := range checkpoints {
		if err := checkRegularFile(ckpt.role, ckpt.path); err != nil {
			return nil, err
		}
	}

	logger := logging.NewComponentLogger(opts.Logger, "inference")
	session, err := startSession(ctx, opts.Launch, opts.Logger)
	if err != nil {
		return nil, err
	}

	device := strings.ToLower(strings.TrimSpace(opts.Device))
	if device == "" {
		device = "auto"
	}
	started := time.Now()
	resp, err := session.call(ctx, &request{
		Op: opLoad,
		Load: &loadParams{
			Kind:           kind.String(),
			Device:         device,
			Conversion:     opts.ConversionCheckpoint,
			CheckpointKey:  kind.CheckpointKey(),
			Vocoder:        opts.VocoderCheckpoint,
			Encoder:        opts.EncoderCheckpoint,
			WaveRNNTarget:  opts.WaveRNNTarget,
			WaveRNNOverlap: opts.WaveRNNOverlap,
			WaveRNNMuLaw:   opts.WaveRNNMuLaw,
		},
	}, opts.LoadTimeout)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("load models: %w", err)
	}

	models := &Models{
		session:        session,
		kind:           kind,
		device:         resp.Device,
		sampleRate:     resp.SampleRate,
		requestTimeout: opts.RequestTimeout,
	}
	logger.Info("models loaded",
		logging.String(logging.FieldVocoder, kind.String()),
		logging.String(logging.FieldDevice, models.device),
		logging.Int("sample_rate", models.sampleRate),
		logging.Duration("elapsed", time.Since(started)),
	)
	return models, nil
}

func checkRegularFile(role, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: %s checkpoint path is empty", ErrCheckpointMissing, role)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s checkpoint %s", ErrCheckpointMissing, role, path)
		}
		return fmt.Errorf("%w: %s checkpoint %s: %v", ErrCheckpointMissing, role, path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s checkpoint %s is not a regular file", ErrCheckpointMissing, role, path)
	}
	return nil
}

// Kind returns the loaded vocoder family.
func (m *Models) Kind() vocoder.Kind { return m.kind }

// Device returns the device the networks were placed on, e.g. "cuda" or "cpu".
func (m *Models) Device() string { return m.device }

// SampleRate returns the output rate of the vocoder.
func (m *Models) SampleRate() int { return m.sampleRate }

// Converter returns the conversion model handle.
func (m *Models) Converter() ConversionModel { return bridgeConverter{m} }

// Vocoder returns the vocoder handle.
func (m *Models) Vocoder() Vocoder { return bridgeVocoder{m} }

// Encoder returns the speaker encoder handle.
func (m *Models) Encoder() SpeakerEncoder { return bridgeEncoder{m} }

// Mel returns the mel extraction handle.
func (m *Models) Mel() MelBackend { return bridgeMel{m} }

// Close stops the bridge process.
func (m *Models) Close() error {
	if m == nil {
		return nil
	}
	return m.session.Close()
}

func (m *Models) do(ctx context.Context, req *request) (*response, error) {
	return m.session.call(ctx, req, m.requestTimeout)
}

type bridgeConverter struct{ m *Models }

func (c bridgeConverter) Convert(ctx context.Context, mel Mel, source, target Embedding) (Mel, error) {
	resp, err := c.m.do(ctx, &request{Op: opConvert, Mel: mel.Frames, Source: source, Target: target})
	if err != nil {
		return Mel{}, err
	}
	return Mel{Frames: resp.Mel, Convention: mel.Convention}, nil
}

type bridgeVocoder struct{ m *Models }

func (v bridgeVocoder) Synthesize(ctx context.Context, mel Mel) (Waveform, error) {
	resp, err := v.m.do(ctx, &request{Op: opGenerate, Mel: mel.Frames})
	if err != nil {
		return Waveform{}, err
	}
	samples, err := decodeSamples(resp.Samples)
	if err != nil {
		return Waveform{}, err
	}
	rate := resp.SampleRate
	if rate == 0 {
		rate = v.m.sampleRate
	}
	return Waveform{Samples: samples, SampleRate: rate}, nil
}

type bridgeEncoder struct{ m *Models }

func (e bridgeEncoder) Embed(ctx context.Context, path string) (Embedding, error) {
	resp, err := e.m.do(ctx, &request{Op: opEmbed, Path: path})
	if err != nil {
		return nil, err
	}
	return Embedding(resp.Embedding), nil
}

type bridgeMel struct{ m *Models }

func (b bridgeMel) Mel(ctx context.Context, path string, convention vocoder.Convention) (Mel, error) {
	resp, err := b.m.do(ctx, &request{Op: opMel, Path: path, Convention: convention.String()})
	if err != nil {
		return Mel{}, err
	}
	return Mel{Frames: resp.Mel, Convention: convention}, nil
}

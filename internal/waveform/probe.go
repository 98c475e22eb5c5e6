package waveform

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// ErrNotWAV is returned by Probe for files that are not RIFF/WAVE.
var ErrNotWAV = errors.New("not a wav file")

// Info describes a WAV file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
	Duration   time.Duration
}

// Probe reads the header and PCM data of the WAV file at path.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Info{}, fmt.Errorf("%w: %s", ErrNotWAV, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("decode wav %s: %w", path, err)
	}
	channels := int(dec.NumChans)
	if channels == 0 {
		channels = 1
	}
	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   int(dec.BitDepth),
		Frames:     len(buf.Data) / channels,
	}
	if info.SampleRate > 0 {
		info.Duration = time.Duration(float64(info.Frames) / float64(info.SampleRate) * float64(time.Second))
	}
	return info, nil
}

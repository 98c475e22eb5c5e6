package inference

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	opLoad     = "load"
	opMel      = "mel"
	opEmbed    = "embed"
	opConvert  = "convert"
	opGenerate = "generate"
	opShutdown = "shutdown"
)

type request struct {
	ID         uint64      `msgpack:"id"`
	Op         string      `msgpack:"op"`
	Load       *loadParams `msgpack:"load,omitempty"`
	Path       string      `msgpack:"path,omitempty"`
	Convention string      `msgpack:"convention,omitempty"`
	Mel        [][]float32 `msgpack:"mel,omitempty"`
	Source     []float32   `msgpack:"source,omitempty"`
	Target     []float32   `msgpack:"target,omitempty"`
}

type loadParams struct {
	Kind           string `msgpack:"kind"`
	Device         string `msgpack:"device"`
	Conversion     string `msgpack:"conversion"`
	CheckpointKey  string `msgpack:"checkpoint_key"`
	Vocoder        string `msgpack:"vocoder"`
	Encoder        string `msgpack:"encoder"`
	WaveRNNTarget  int    `msgpack:"wavernn_target"`
	WaveRNNOverlap int    `msgpack:"wavernn_overlap"`
	WaveRNNMuLaw   bool   `msgpack:"wavernn_mu_law"`
}

type response struct {
	ID         uint64      `msgpack:"id"`
	OK         bool        `msgpack:"ok"`
	Error      string      `msgpack:"error"`
	ErrorType  string      `msgpack:"error_type"`
	Device     string      `msgpack:"device"`
	SampleRate int         `msgpack:"sample_rate"`
	Mel        [][]float32 `msgpack:"mel"`
	Embedding  []float32   `msgpack:"embedding"`
	Samples    []byte      `msgpack:"samples"`
}

// decodeSamples unpacks little-endian float32 PCM.
func decodeSamples(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: sample payload of %d bytes is not float32 aligned", ErrProtocol, len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

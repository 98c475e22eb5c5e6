package vocoder

import (
	"errors"
	"strings"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
	}{
		{"wavernn", WaveRNN},
		{"WaveRNN", WaveRNN},
		{" wavenet ", WaveNet},
		{"WAVENET", WaveNet},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.input)
		if err != nil {
			t.Fatalf("ParseKind(%q) returned error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("ParseKind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseKindRejectsUnknown(t *testing.T) {
	for _, input := range []string{"", "griffinlim", "wave rnn"} {
		_, err := ParseKind(input)
		if !errors.Is(err, ErrUnknownKind) {
			t.Fatalf("ParseKind(%q) error = %v, want ErrUnknownKind", input, err)
		}
		if !strings.Contains(err.Error(), "wavernn") {
			t.Fatalf("expected error to list supported kinds, got %v", err)
		}
	}
}

func TestConventionAndCheckpointKey(t *testing.T) {
	if WaveRNN.Convention() != ConventionWaveRNN {
		t.Fatalf("wavernn convention = %q", WaveRNN.Convention())
	}
	if WaveNet.Convention() != ConventionAutoVC {
		t.Fatalf("wavenet convention = %q", WaveNet.Convention())
	}
	if WaveRNN.CheckpointKey() != "model_state" || WaveNet.CheckpointKey() != "model" {
		t.Fatal("unexpected checkpoint keys")
	}
}

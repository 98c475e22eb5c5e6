package outputs_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"crossvoice/internal/outputs"
)

func TestConvertedNameMatchesSampleNames(t *testing.T) {
	got := outputs.ConvertedName(
		outputs.SampleName("speakerA", "/data/speakerA/speakerA_001.wav"),
		outputs.SampleName("speakerB", "/data/speakerB/speakerB_002.wav"),
	)
	if got != "speakerA_001_to_speakerB_002" {
		t.Fatalf("ConvertedName = %q", got)
	}
}

func TestSampleNameQualifiesBareNames(t *testing.T) {
	tests := []struct {
		speaker, path, want string
	}{
		{"p225", "/d/p225/p225_001.wav", "p225_001"},
		{"p225", "/d/p225/001.wav", "p225_001"},
		{"p226", "/d/p226/001.wav", "p226_001"},
		{"p225", "/d/p225/p225.wav", "p225"},
		{"p22", "/d/p22/p225_001.wav", "p22_p225_001"},
		{"", "/d/001.wav", "001"},
	}
	for _, tt := range tests {
		if got := outputs.SampleName(tt.speaker, tt.path); got != tt.want {
			t.Fatalf("SampleName(%q, %q) = %q, want %q", tt.speaker, tt.path, got, tt.want)
		}
	}
	a := outputs.ConvertedName(outputs.SampleName("p225", "/d/p225/001.wav"), outputs.SampleName("p227", "/d/p227/001.wav"))
	b := outputs.ConvertedName(outputs.SampleName("p226", "/d/p226/001.wav"), outputs.SampleName("p227", "/d/p227/001.wav"))
	if a == b {
		t.Fatalf("repeated basenames across speakers collide: %q", a)
	}
}

func TestLayoutStems(t *testing.T) {
	layout := outputs.NewLayout("/exp", "AutoVC", true)
	converted := layout.ConvertedStem("English_English", "Male_Female", "p225_001_to_p226_004")
	if converted != filepath.Join("/exp", "AutoVC", "English_English", "Male_Female", "p225_001_to_p226_004") {
		t.Fatalf("unexpected converted stem %q", converted)
	}
	recon := layout.ReconstructionStem("p225", "a/p225_001.wav")
	if recon != filepath.Join("/exp", "AutoVC", "persons", "p225", "p225_001") {
		t.Fatalf("unexpected reconstruction stem %q", recon)
	}
	if got := layout.ConvertedStem("x/y", "..", "s_to_t"); got != filepath.Join("/exp", "AutoVC", "x-y", "_", "s_to_t") {
		t.Fatalf("labels should be sanitized, got %q", got)
	}
}

func TestSpeakerFromName(t *testing.T) {
	tests := map[string]string{
		"/d/p225_001.wav": "p225",
		"solo.wav":        "solo",
		"_lead.wav":       "_lead",
	}
	for input, want := range tests {
		if got := outputs.SpeakerFromName(input); got != want {
			t.Fatalf("SpeakerFromName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestClaimPolicies(t *testing.T) {
	root := t.TempDir()
	layout := outputs.Layout{Root: root, CreateDirs: true}
	stem := filepath.Join(root, "10min", "Male_Male", "a_to_b")

	claim, err := layout.Claim(stem, outputs.PolicyFail)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if claim.Skip || claim.Path() != stem+".wav" {
		t.Fatalf("unexpected claim %+v", claim)
	}
	if err := os.WriteFile(claim.Path(), []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	if _, err := layout.Claim(stem, outputs.PolicyFail); !errors.Is(err, outputs.ErrExists) {
		t.Fatalf("fail policy error = %v, want ErrExists", err)
	}
	if claim, err := layout.Claim(stem, outputs.PolicyOverwrite); err != nil || claim.Skip || claim.Stem != stem {
		t.Fatalf("overwrite claim = %+v, %v", claim, err)
	}
	if claim, err := layout.Claim(stem, outputs.PolicySkip); err != nil || !claim.Skip {
		t.Fatalf("skip claim = %+v, %v", claim, err)
	}

	claim, err = layout.Claim(stem, outputs.PolicyIncrement)
	if err != nil {
		t.Fatalf("increment claim: %v", err)
	}
	if claim.Stem != stem+"_2" {
		t.Fatalf("increment stem = %q", claim.Stem)
	}
	if err := os.WriteFile(claim.Path(), []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	claim, err = layout.Claim(stem, outputs.PolicyIncrement)
	if err != nil || claim.Stem != stem+"_3" {
		t.Fatalf("second increment = %+v, %v", claim, err)
	}
}

func TestClaimTreatsReclaimedPathsAsFree(t *testing.T) {
	root := t.TempDir()
	layout := outputs.Layout{Root: root, CreateDirs: true}
	stem := filepath.Join(root, "10min", "Male_Male", "a_to_b")
	if err := os.MkdirAll(filepath.Dir(stem), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, path := range []string{stem + ".wav", stem + "_2.wav"} {
		if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}

	claim, err := layout.Claim(stem, outputs.PolicyFail, stem+".wav")
	if err != nil || claim.Skip || claim.Stem != stem {
		t.Fatalf("fail policy with reclaimed path = %+v, %v", claim, err)
	}
	claim, err = layout.Claim(stem, outputs.PolicyIncrement, stem+"_2.wav")
	if err != nil || claim.Stem != stem+"_2" {
		t.Fatalf("increment should reuse its own suffix, got %+v, %v", claim, err)
	}
	if _, err := layout.Claim(stem, outputs.PolicyFail, filepath.Join(root, "other.wav")); !errors.Is(err, outputs.ErrExists) {
		t.Fatalf("unrelated reclaim should not free the stem, got %v", err)
	}
}

func TestClaimWithoutDirectoryCreation(t *testing.T) {
	root := t.TempDir()
	layout := outputs.Layout{Root: root}
	stem := filepath.Join(root, "English_English", "Male_Male", "a_to_b")

	if _, err := layout.Claim(stem, outputs.PolicyFail); !errors.Is(err, outputs.ErrMissingDir) {
		t.Fatalf("expected ErrMissingDir, got %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(stem), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := layout.Claim(stem, outputs.PolicyFail); err != nil {
		t.Fatalf("claim with existing dir: %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := outputs.ParsePolicy(" Skip "); err != nil || p != outputs.PolicySkip {
		t.Fatalf("ParsePolicy = %q, %v", p, err)
	}
	if _, err := outputs.ParsePolicy("rename"); !errors.Is(err, outputs.ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}

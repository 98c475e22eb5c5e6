package main

import (
	"path/filepath"
	"testing"

	"crossvoice/internal/testsupport"
	"crossvoice/internal/waveform"
)

func TestConvertJobClassifiesWithMetadata(t *testing.T) {
	env := setupCLITestEnv(t, englishPair())
	src := filepath.Join(env.cfg.Experiment.Dataset, "p225", "p225_001.wav")
	tgt := filepath.Join(env.cfg.Experiment.Dataset, "p226", "p226_002.wav")

	job, err := (&convertOptions{}).job(env.cfg, src, tgt)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if job.Source.Speaker != "p225" || job.Target.Speaker != "p226" {
		t.Fatalf("unexpected speakers %+v", job)
	}
	if job.Task != "English_English" || job.Subtask != "Female_Male" {
		t.Fatalf("unexpected bucket %s/%s", job.Task, job.Subtask)
	}
}

func TestConvertJobFlagsOverride(t *testing.T) {
	env := setupCLITestEnv(t, englishPair())
	opts := &convertOptions{task: "demo", subtask: "any", sourceSpeaker: "alice", targetSpeaker: "bob"}
	job, err := opts.job(env.cfg, "/clips/one.wav", "/clips/two.wav")
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if job.Task != "demo" || job.Subtask != "any" || job.Source.Speaker != "alice" || job.Target.Speaker != "bob" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestConvertJobUnknownSpeaker(t *testing.T) {
	env := setupCLITestEnv(t, englishPair())
	if _, err := (&convertOptions{}).job(env.cfg, "/clips/zed_001.wav", "/clips/p225_001.wav"); err == nil {
		t.Fatal("expected unknown source speaker to fail")
	}
}

func TestConvertJobLanguageMismatch(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithDataset(
		testsupport.Speaker{ID: "p225", Gender: "F", Language: "English", Samples: 1},
		testsupport.Speaker{ID: "d001", Gender: "M", Language: "Danish", Samples: 1},
	))
	if _, err := (&convertOptions{}).job(env.cfg, "/clips/p225_001.wav", "/clips/d001_001.wav"); err == nil {
		t.Fatal("expected cross-language pair to be rejected")
	}
}

func TestAudioLengthReadsWAVHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if _, err := waveform.Write(path, make([]float32, 33075), 22050); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if got := audioLength(path); got != "1.5s" {
		t.Fatalf("audioLength = %q, want 1.5s", got)
	}
	if got := audioLength(filepath.Join(t.TempDir(), "missing.wav")); got != "-" {
		t.Fatalf("audioLength of missing file = %q", got)
	}
}

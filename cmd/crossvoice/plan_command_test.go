package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPlanSummary(t *testing.T) {
	env := setupCLITestEnv(t, englishPair())

	out, _, err := runCLI(t, []string{"plan", "--summary", "--test-size", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "English_English")
	requireContains(t, out, "Female_Male")
	requireContains(t, out, "Male_Female")
	requireContains(t, out, "2 speakers, 4 samples")
	if strings.Contains(out, "p225_001_to_p226_001") {
		t.Fatalf("summary should not list jobs:\n%s", out)
	}
}

func TestPlanListsJobs(t *testing.T) {
	env := setupCLITestEnv(t, englishPair())

	out, _, err := runCLI(t, []string{"plan", "--test-size", "2", "--train-length", "10min"}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "10min/Male_Male/p225_001_to_p226_001.wav")
	requireContains(t, out, "p226_002")
}

func TestPlanJSON(t *testing.T) {
	env := setupCLITestEnv(t, englishPair())

	out, _, err := runCLI(t, []string{"plan", "--json", "--test-size", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("plan --json: %v", err)
	}
	var payload planJSON
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode plan json: %v\n%s", err, out)
	}
	// Each of 2 samples per speaker pairs with the other speaker's 2 samples.
	if payload.Stats.Jobs != 8 || len(payload.Jobs) != 8 {
		t.Fatalf("expected 8 jobs, got stats=%d jobs=%d", payload.Stats.Jobs, len(payload.Jobs))
	}
	first := payload.Jobs[0]
	if !strings.HasSuffix(first.Converted, "English_English/Female_Male/p225_001_to_p226_001.wav") {
		t.Fatalf("unexpected converted path %q", first.Converted)
	}
	if len(payload.Buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %+v", payload.Buckets)
	}
}

func TestPlanRejectsBadOverride(t *testing.T) {
	env := setupCLITestEnv(t, englishPair())
	_, _, err := runCLI(t, []string{"plan", "--vocoder", "griffinlim"}, env.configPath)
	if err == nil {
		t.Fatal("expected unknown vocoder to fail")
	}
	requireContains(t, err.Error(), "vocoder.kind")
}

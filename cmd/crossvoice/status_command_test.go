package main

import (
	"context"
	"encoding/json"
	"testing"

	"crossvoice/internal/ledger"
	"crossvoice/internal/testsupport"
)

func TestStatusEmptyLedger(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "No runs recorded yet.")
}

func TestStatusListsRunsAndShowsOne(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenLedger(t, env.cfg)
	ctx := context.Background()

	run, err := store.StartRun(ctx, ledger.Run{ID: "0f1e2d3c-aaaa-bbbb-cccc-000000000001", ModelRoot: env.cfg.ModelRoot(), Vocoder: "wavernn"})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	jobs := []ledger.Job{
		{Key: "English_English/Female_Male/a->b", Task: "English_English", Subtask: "Female_Male", SourcePath: "a", TargetPath: "b"},
		{Key: "English_English/Male_Female/b->a", Task: "English_English", Subtask: "Male_Female", SourcePath: "b", TargetPath: "a"},
	}
	if err := store.AddJobs(ctx, run.ID, run.ModelRoot, jobs); err != nil {
		t.Fatalf("AddJobs: %v", err)
	}
	if err := store.MarkCompleted(ctx, run.ID, jobs[0].Key, ledger.Artifacts{Converted: "/x.wav"}); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := store.MarkFailed(ctx, run.ID, jobs[1].Key, "bridge closed"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := store.FinishRun(ctx, run.ID, ledger.RunFailed, ledger.Totals{Planned: 2, Completed: 1, Failed: 1}, "1 job failed"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "0f1e2d3c")
	requireContains(t, out, "failed")

	out, _, err = runCLI(t, []string{"status", "--run", "0f1e"}, env.configPath)
	if err != nil {
		t.Fatalf("status --run: %v", err)
	}
	requireContains(t, out, run.ID)
	requireContains(t, out, "bridge closed")
	requireContains(t, out, "1 job failed")

	out, _, err = runCLI(t, []string{"status", "--run", run.ID, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var detail runDetailJSON
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if detail.Jobs[ledger.JobCompleted] != 1 || detail.Jobs[ledger.JobFailed] != 1 || len(detail.Failed) != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	if _, _, err := runCLI(t, []string{"status", "--run", "ffff"}, env.configPath); err == nil {
		t.Fatal("expected unknown run to fail")
	}
}

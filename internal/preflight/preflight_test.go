package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crossvoice/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "model.pt")
	testsupport.WriteFile(t, ckpt, 2048)

	if res := CheckFile("ckpt", ckpt); !res.Passed || !strings.Contains(res.Detail, "2.0 KiB") {
		t.Fatalf("expected pass with size, got %+v", res)
	}
	if res := CheckFile("ckpt", filepath.Join(dir, "missing.pt")); res.Passed || !strings.Contains(res.Detail, "does not exist") {
		t.Fatalf("expected missing file to fail, got %+v", res)
	}
	if res := CheckFile("ckpt", dir); res.Passed || !strings.Contains(res.Detail, "not a regular file") {
		t.Fatalf("expected directory to fail, got %+v", res)
	}
	if res := CheckFile("ckpt", ""); res.Passed {
		t.Fatal("expected empty path to fail")
	}
}

func TestCheckMetadataRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persons.csv")
	if err := os.WriteFile(path, []byte("p225,F,English\np225,F,English\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := CheckMetadata(path)
	if res.Passed || !strings.Contains(res.Detail, "duplicate") {
		t.Fatalf("expected duplicate speaker failure, got %+v", res)
	}
}

func TestCheckDatasetReportsTestSplit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDataset(
		testsupport.Speaker{ID: "p225", Gender: "F", Language: "English", Samples: 4},
		testsupport.Speaker{ID: "p226", Gender: "M", Language: "English", Samples: 2},
	))
	res := CheckDataset(cfg.Experiment.Dataset, cfg.Experiment.DatasetLayout, 3)
	if !res.Passed {
		t.Fatalf("expected dataset to pass, got %s", res.Detail)
	}
	if !strings.Contains(res.Detail, "2 speakers, 5 test samples") {
		t.Fatalf("unexpected detail %q", res.Detail)
	}
	if res := CheckDataset(cfg.Experiment.Dataset, "flat", 3); res.Passed {
		t.Fatal("expected unknown layout to fail")
	}
}

func TestCheckOutputRoot(t *testing.T) {
	base := t.TempDir()
	missing := filepath.Join(base, "Experiment", "nested")
	if res := CheckOutputRoot("root", missing, true); !res.Passed || !strings.Contains(res.Detail, "will be created") {
		t.Fatalf("expected creatable root to pass, got %+v", res)
	}
	if res := CheckOutputRoot("root", missing, false); res.Passed {
		t.Fatal("expected missing root without create_dirs to fail")
	}
	if res := CheckOutputRoot("root", base, false); !res.Passed {
		t.Fatalf("expected existing root to pass, got %+v", res)
	}
}

func TestCheckLauncher(t *testing.T) {
	testsupport.NewConfig(t, testsupport.WithStubbedBinaries("python-stub"))
	res := CheckLauncher(context.Background(), "python", "python-stub")
	if !res.Passed || !strings.Contains(res.Detail, "3.11.9") {
		t.Fatalf("expected python stub to pass, got %+v", res)
	}

	t.Setenv("PATH", t.TempDir())
	if res := CheckLauncher(context.Background(), "uvx", "python3"); res.Passed {
		t.Fatal("expected missing uvx to fail")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReadyConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithCheckpoints(),
		testsupport.WithDataset(
			testsupport.Speaker{ID: "p225", Gender: "F", Language: "English", Samples: 3},
			testsupport.Speaker{ID: "p226", Gender: "M", Language: "English", Samples: 3},
		),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 9 {
		t.Fatalf("expected 9 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_ReportsMissingInputs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	failed := Failed(RunAll(context.Background(), cfg))
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Name)
	}
	got := strings.Join(names, ",")
	for _, want := range []string{"Model directory", "Conversion checkpoint", "Vocoder checkpoint (wavernn)", "Speaker metadata", "Dataset"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q among failed checks, got %s", want, got)
		}
	}
	if strings.Contains(got, "Python") {
		t.Fatalf("stubbed interpreter should pass, got %s", got)
	}
}

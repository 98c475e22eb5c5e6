package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"crossvoice/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Dataset", statusError, "does not exist", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Dataset:", "[ERROR] does not exist")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Dataset", statusOK, "ready", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestCheckLines(t *testing.T) {
	lines := checkLines([]preflight.Result{
		{Name: "Python", Passed: true, Detail: "/usr/bin/python3 (3.11.9)"},
		{Name: "Dataset", Detail: "missing"},
	}, false)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[OK] /usr/bin/python3") || !strings.Contains(lines[1], "[ERROR] missing") {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestRenderTableFooterAndTitle(t *testing.T) {
	out := tableSpec{
		Title:   "Plan",
		Headers: []string{"Task", "Jobs"},
		Rows:    [][]string{{"English_English", "4"}},
		Footer:  []string{"Total", "4"},
		Aligns:  []columnAlignment{alignLeft, alignRight},
	}.render()
	for _, want := range []string{"Plan", "TASK", "English_English", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty table for no headers")
	}
}

func TestRelPath(t *testing.T) {
	if got := relPath("/exp/AutoVC", "/exp/AutoVC/persons/p225/a.wav"); got != "persons/p225/a.wav" {
		t.Fatalf("relPath = %q", got)
	}
	if got := relPath("/exp/AutoVC", "/elsewhere/a.wav"); got != "/elsewhere/a.wav" {
		t.Fatalf("relPath outside root = %q", got)
	}
}

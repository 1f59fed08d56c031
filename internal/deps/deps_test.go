package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Optional", Command: "also-not-present-binary", Optional: true},
		{Name: "Unset"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[3].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %q", results[3].Detail)
	}

	missing := Missing(results)
	if len(missing) != 2 || missing[0].Name != "Missing" || missing[1].Name != "Unset" {
		t.Fatalf("unexpected missing set: %#v", missing)
	}
}

func TestResolveFFmpegPathUsesPATH(t *testing.T) {
	binDir := t.TempDir()
	ffmpegPath := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(ffmpegPath, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	if got := ResolveFFmpegPath(""); got != ffmpegPath {
		t.Fatalf("expected %q, got %q", ffmpegPath, got)
	}
	req := FFmpegRequirement(" ffmpeg ")
	if req.Command != ffmpegPath {
		t.Fatalf("expected requirement command %q, got %q", ffmpegPath, req.Command)
	}
}

func TestResolveFFmpegPathNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	if got := ResolveFFmpegPath("my-ffmpeg"); got != "my-ffmpeg" {
		t.Fatalf("expected configured name back, got %q", got)
	}
	statuses := CheckBinaries([]Requirement{FFmpegRequirement("")})
	if statuses[0].Available {
		t.Fatal("expected ffmpeg resolution to fail")
	}
}

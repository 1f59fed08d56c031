package transcode_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamgate/internal/config"
	"streamgate/internal/logging"
	"streamgate/internal/services"
	"streamgate/internal/testsupport"
	"streamgate/internal/transcode"
)

var _ transcode.Transcoder = (*transcode.FFmpeg)(nil)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestFFmpegWritesOutputsWithStub(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	tc := transcode.NewFFmpeg(cfg.Transcoder, logging.NewNop())
	if !strings.HasSuffix(tc.Binary, string(filepath.Separator)+"ffmpeg") || !filepath.IsAbs(tc.Binary) {
		t.Fatalf("expected resolved stub binary, got %q", tc.Binary)
	}

	dir := t.TempDir()
	ctx := context.Background()
	manifest := filepath.Join(dir, "ep.partial.m3u8")
	if err := tc.Segmented(ctx, "in.mp4", manifest, filepath.Join(dir, "ep_%03d.ts")); err != nil {
		t.Fatalf("Segmented failed: %v", err)
	}
	preview := filepath.Join(dir, "ep.partial.mp4")
	if err := tc.Preview(ctx, "in.mp4", preview, 30); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	poster := filepath.Join(dir, "ep.partial.jpg")
	if err := tc.Poster(ctx, "in.mp4", poster, 5); err != nil {
		t.Fatalf("Poster failed: %v", err)
	}
	for _, path := range []string{manifest, preview, poster} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected output %s: %v", path, err)
		}
	}
}

func TestFFmpegArguments(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	script := writeScript(t, "printf '%s\\n' \"$@\" >> "+argsFile+"\n")
	tc := &transcode.FFmpeg{Binary: script, SegmentSeconds: 4}
	ctx := context.Background()

	if err := tc.Segmented(ctx, "src.mkv", "out.m3u8", "out_%03d.ts"); err != nil {
		t.Fatalf("Segmented failed: %v", err)
	}
	if err := tc.Preview(ctx, "src.mkv", "p.mp4", 30); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if err := tc.Poster(ctx, "src.mkv", "p.jpg", 5); err != nil {
		t.Fatalf("Poster failed: %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	recorded := strings.Join(strings.Fields(string(data)), " ")
	for _, want := range []string{
		"-f hls -hls_playlist_type vod -hls_time 4 -hls_segment_filename out_%03d.ts out.m3u8",
		"-i src.mkv -t 30",
		"-ss 5 -i src.mkv -frames:v 1 p.jpg",
	} {
		if !strings.Contains(recorded, want) {
			t.Fatalf("expected %q in recorded args:\n%s", want, recorded)
		}
	}
}

func TestFFmpegFailureIncludesStderr(t *testing.T) {
	script := writeScript(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n")
	tc := &transcode.FFmpeg{Binary: script}

	err := tc.Preview(context.Background(), "bad.mp4", filepath.Join(t.TempDir(), "p.mp4"), 30)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestFFmpegTimeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5\n")
	tc := &transcode.FFmpeg{Binary: script, Timeout: 100 * time.Millisecond}

	start := time.Now()
	err := tc.Poster(context.Background(), "in.mp4", "out.jpg", 5)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout detail, got %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatal("expected the process to be killed at the deadline")
	}
}

func TestNewFFmpegFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Transcoder.FFmpegBinary = "definitely-missing-ffmpeg"
	tc := transcode.NewFFmpeg(cfg.Transcoder, nil)
	if tc.Binary != "definitely-missing-ffmpeg" {
		t.Fatalf("unexpected binary %q", tc.Binary)
	}
	if tc.Timeout != time.Duration(cfg.Transcoder.TimeoutSeconds)*time.Second {
		t.Fatalf("unexpected timeout %s", tc.Timeout)
	}
	err := tc.Poster(context.Background(), "in.mp4", "out.jpg", 5)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error for missing binary, got %v", err)
	}
}

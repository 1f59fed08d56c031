// Package transcode derives streamable renditions from an original video by
// invoking ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"streamgate/internal/config"
	"streamgate/internal/deps"
	"streamgate/internal/logging"
	"streamgate/internal/services"
)

// Transcoder produces the three renditions of an original. Every method writes
// exactly the destination paths it is given.
type Transcoder interface {
	Segmented(ctx context.Context, src, manifest, segmentPattern string) error
	Preview(ctx context.Context, src, dst string, seconds int) error
	Poster(ctx context.Context, src, dst string, offsetSeconds int) error
}

const maxStderr = 1024

// FFmpeg runs the ffmpeg binary with fixed rendition parameters.
type FFmpeg struct {
	Binary         string
	Timeout        time.Duration
	SegmentSeconds int
	logger         *slog.Logger
}

// NewFFmpeg builds an FFmpeg transcoder from configuration.
func NewFFmpeg(cfg config.Transcoder, logger *slog.Logger) *FFmpeg {
	return &FFmpeg{
		Binary:         deps.ResolveFFmpegPath(cfg.FFmpegBinary),
		Timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
		SegmentSeconds: cfg.HLSSegmentSeconds,
		logger:         logging.NewComponentLogger(logger, "transcoder"),
	}
}

// Segmented writes a VOD HLS playlist to manifest and its segments following
// segmentPattern (a printf pattern such as "name_%03d.ts").
func (f *FFmpeg) Segmented(ctx context.Context, src, manifest, segmentPattern string) error {
	segment := f.SegmentSeconds
	if segment <= 0 {
		segment = 6
	}
	return f.run(ctx, "segmented",
		"-y", "-i", src,
		"-map", "0:v:0", "-map", "0:a:0?",
		"-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac",
		"-f", "hls",
		"-hls_playlist_type", "vod",
		"-hls_time", strconv.Itoa(segment),
		"-hls_segment_filename", segmentPattern,
		manifest,
	)
}

// Preview writes the first seconds of src as an mp4.
func (f *FFmpeg) Preview(ctx context.Context, src, dst string, seconds int) error {
	return f.run(ctx, "preview",
		"-y", "-i", src,
		"-t", strconv.Itoa(seconds),
		"-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac",
		"-movflags", "+faststart",
		dst,
	)
}

// Poster writes a single frame taken offsetSeconds into src.
func (f *FFmpeg) Poster(ctx context.Context, src, dst string, offsetSeconds int) error {
	return f.run(ctx, "poster",
		"-y", "-ss", strconv.Itoa(offsetSeconds), "-i", src,
		"-frames:v", "1",
		dst,
	)
}

func (f *FFmpeg) run(ctx context.Context, op string, args ...string) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	binary := f.Binary
	if binary == "" {
		binary = deps.ResolveFFmpegPath("")
	}

	args = append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, args...)
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if f.logger != nil {
		f.logger.Debug("ffmpeg finished",
			logging.String("operation", op),
			logging.Duration("elapsed", time.Since(start)),
			logging.String("args", strings.Join(args, " ")),
		)
	}
	if err == nil {
		return nil
	}

	detail := trimStderr(stderr.String())
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		detail = "timed out after " + f.Timeout.String()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && detail == "" {
		detail = "exit status " + strconv.Itoa(exitErr.ExitCode())
	}
	return services.Wrap(services.ErrExternalTool, "transcode", op, detail, err)
}

func trimStderr(output string) string {
	output = strings.TrimSpace(output)
	if len(output) <= maxStderr {
		return output
	}
	return "..." + output[len(output)-maxStderr:]
}

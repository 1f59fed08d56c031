// Package deps reports whether the external binaries streamgate shells out to
// are available.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

const defaultFFmpeg = "ffmpeg"

// Requirement names a binary and whether streamgate can run without it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after lookup. Command holds the resolved path when
// Available is true.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// FFmpegRequirement describes the transcoder binary.
func FFmpegRequirement(configured string) Requirement {
	return Requirement{
		Name:        "FFmpeg",
		Command:     ResolveFFmpegPath(configured),
		Description: "Produces HLS renditions, previews and posters",
	}
}

// ResolveFFmpegPath returns the absolute path of the configured ffmpeg when
// PATH lookup succeeds and the configured name (default "ffmpeg") otherwise,
// so a later exec error still names it.
func ResolveFFmpegPath(configured string) string {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = defaultFFmpeg
	}
	if resolved, err := exec.LookPath(name); err == nil {
		return resolved
	}
	return name
}

// Check looks req up on PATH.
func Check(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

// CheckBinaries runs Check over requirements in order.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		out[i] = Check(req)
	}
	return out
}

// Missing returns the required entries that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, status := range statuses {
		if !status.Optional && !status.Available {
			out = append(out, status)
		}
	}
	return out
}

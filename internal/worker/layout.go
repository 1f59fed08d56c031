package worker

import (
	"path/filepath"
	"strings"

	"streamgate/internal/queue"
)

// Layout holds the derived output locations for one original, relative to
// the content root.
type Layout struct {
	queue.Renditions
	// SegmentPattern is the printf pattern for HLS segments.
	SegmentPattern string
}

// LayoutFor derives output paths from the original's episode directory (the
// parent of the directory holding the original) and its base name.
func LayoutFor(originalPath string) Layout {
	rel := filepath.Clean(originalPath)
	episodeDir := filepath.Dir(filepath.Dir(rel))
	base := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	hlsDir := filepath.Join(episodeDir, "hls")
	return Layout{
		Renditions: queue.Renditions{
			HLS:     filepath.Join(hlsDir, base+".m3u8"),
			Preview: filepath.Join(episodeDir, "preview", base+".mp4"),
			Poster:  filepath.Join(episodeDir, "poster", base+".jpg"),
		},
		SegmentPattern: filepath.Join(hlsDir, strings.ReplaceAll(base, "%", "%%")+"_%03d.ts"),
	}
}

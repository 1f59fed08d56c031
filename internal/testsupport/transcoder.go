package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FakeTranscoder records invocations and writes placeholder outputs.
type FakeTranscoder struct {
	mu    sync.Mutex
	calls []string
	// Fail, when set, is returned by every call whose kind it names
	// ("segmented", "preview", "poster") or by all calls when keyed "*".
	Fail map[string]error
	// Segments is the number of .ts files written per manifest.
	Segments int
}

// Calls returns the recorded invocation kinds in order.
func (f *FakeTranscoder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeTranscoder) record(kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	if err, ok := f.Fail[kind]; ok {
		return err
	}
	if err, ok := f.Fail["*"]; ok {
		return err
	}
	return nil
}

func (f *FakeTranscoder) Segmented(_ context.Context, src, manifest, segmentPattern string) error {
	if err := f.record("segmented"); err != nil {
		return err
	}
	count := f.Segments
	if count <= 0 {
		count = 2
	}
	var playlist strings.Builder
	playlist.WriteString("#EXTM3U\n#EXT-X-PLAYLIST-TYPE:VOD\n")
	for i := 0; i < count; i++ {
		segment := fmt.Sprintf(segmentPattern, i)
		if err := os.WriteFile(segment, []byte("segment"), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(&playlist, "#EXTINF:6.0,\n%s\n", filepath.Base(segment))
	}
	playlist.WriteString("#EXT-X-ENDLIST\n")
	return os.WriteFile(manifest, []byte(playlist.String()), 0o644)
}

func (f *FakeTranscoder) Preview(_ context.Context, src, dst string, seconds int) error {
	if err := f.record("preview"); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("preview"), 0o644)
}

func (f *FakeTranscoder) Poster(_ context.Context, src, dst string, offsetSeconds int) error {
	if err := f.record("poster"); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("poster"), 0o644)
}

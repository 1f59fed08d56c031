package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Heat.mp4", "Heat.mp4"},
		{"  Film: Part 1?.mkv ", "Film- Part 1.mkv"},
		{"a/b\\c.mp4", "a-b-c.mp4"},
		{"tab\there\nnow.mp4", "tab here now.mp4"},
		{"../escape.mp4", "-escape.mp4"},
		{".hidden.mp4", "hidden.mp4"},
		{"<|>", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

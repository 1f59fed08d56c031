package catalog

import (
	"mime"
	"path/filepath"
	"strings"
)

var knownTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".ts":   "video/mp2t",
	".mpg":  "video/mpeg",
	".mpeg": "video/mpeg",
	".m3u8": "application/vnd.apple.mpegurl",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// MimeType guesses a content type from the file extension.
func MimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

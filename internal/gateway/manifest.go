package gateway

import (
	"net/url"
	"strings"
)

// rewriteManifest appends the stream token to every segment URI so players
// that resolve segments relative to the manifest keep presenting it.
func rewriteManifest(playlist []byte, token string) []byte {
	query := "token=" + url.QueryEscape(token)
	lines := strings.Split(strings.ReplaceAll(string(playlist), "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		sep := "?"
		if strings.Contains(trimmed, "?") {
			sep = "&"
		}
		lines[i] = trimmed + sep + query
	}
	return []byte(strings.Join(lines, "\n"))
}

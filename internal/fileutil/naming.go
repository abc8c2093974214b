package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GUIDToken derives a short stable token from a feed GUID. Embedding it in
// filenames lets sync match device files to episodes without trusting titles,
// which feeds rewrite freely.
func GUIDToken(guid string) string {
	sum := sha256.Sum256([]byte(guid))
	return hex.EncodeToString(sum[:])[:8]
}

// EpisodeFileName builds the canonical artifact filename for an episode:
// sanitized title, GUID token, extension.
func EpisodeFileName(title, guid, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "mp3"
	}
	return fmt.Sprintf("%s-%s.%s", SanitizeFilename(title), GUIDToken(guid), ext)
}

// HasGUIDToken reports whether a filename carries the episode's GUID token.
func HasGUIDToken(filename, guid string) bool {
	return strings.Contains(filename, "-"+GUIDToken(guid)+".")
}

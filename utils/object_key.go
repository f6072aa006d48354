package utils

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
)

// EvidenceObjectKey builds a stable blob key, e.g. "deposits/<user>/<request>/screenshot.png".
// The same inputs always give the same key, so a retried upload overwrites instead of duplicating.
func EvidenceObjectKey(userID, requestID, slot, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 6 {
		ext = ".jpg"
	}
	return path.Join("deposits", slug.Make(userID), slug.Make(requestID), slug.Make(slot)+ext)
}

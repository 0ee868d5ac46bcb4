package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

const recordExt = ".json"

// RecordPath maps a client filename to <dir>/<filename>.json.
// Nested names are allowed; anything resolving outside dir is rejected.
func RecordPath(dir, filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidFilename)
	}
	rel := filepath.Clean(filepath.FromSlash(filename))
	switch {
	case rel == "." || rel == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	case filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidFilename, filename)
	case strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", fmt.Errorf("%w: %q escapes the annotation directory", ErrInvalidFilename, filename)
	}
	return filepath.Join(dir, rel+recordExt), nil
}

// RecordName is the inverse of RecordPath for a path relative to the directory.
func RecordName(rel string) (string, bool) {
	if !strings.HasSuffix(rel, recordExt) {
		return "", false
	}
	name := strings.TrimSuffix(filepath.ToSlash(rel), recordExt)
	if name == "" {
		return "", false
	}
	return name, true
}

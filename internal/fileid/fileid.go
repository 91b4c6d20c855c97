// Package fileid derives document IDs. Ingested files get a stable ID from their
// path so re-ingesting a file replaces its chunks instead of duplicating them.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

const prefix = "doc-"

// ForPath returns a stable document ID for the given path.
// Paths are cleaned first, so "/a/./b" and "/a/b/" map to the same ID.
func ForPath(path string) string {
	normalized := filepath.ToSlash(filepath.Clean(path))
	return prefix + uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+normalized)).String()
}

// New returns a random document ID for documents that do not come from a file.
func New() string {
	return prefix + uuid.NewString()
}

// Valid reports whether id has the shape produced by ForPath or New.
func Valid(id string) bool {
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return false
	}
	_, err := uuid.Parse(id[len(prefix):])
	return err == nil
}

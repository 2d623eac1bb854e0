// Package fileid derives stable record IDs from file paths, so re-ingesting or deleting a
// file addresses the same document record.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// DocID returns a name-based (version 5) UUID for the cleaned path.
// The same path always yields the same ID.
func DocID(path string) string {
	normalized := filepath.ToSlash(filepath.Clean(path))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+normalized)).String()
}

// ForPath resolves path to an absolute path and returns it with its DocID.
func ForPath(path string) (abs string, id string, err error) {
	abs, err = filepath.Abs(path)
	if err != nil {
		return "", "", err
	}
	return abs, DocID(abs), nil
}

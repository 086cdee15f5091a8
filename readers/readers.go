// Package readers extracts plain text from the file formats accepted by the
// watch directory.
package readers

import (
	"fmt"
	"path/filepath"
)

type FileReader interface {
	CanRead(path string) bool
	ReadText(path string) (string, error)
}

// For picks the first reader able to handle the file.
func For(readers []FileReader, path string) (FileReader, error) {
	for _, r := range readers {
		if r.CanRead(path) {
			return r, nil
		}
	}

	return nil, fmt.Errorf("no reader for file type: %s", filepath.Ext(path))
}

package readers

import (
	"fmt"
	"os"
	"path/filepath"
)

// TextFileReader handles formats that are already plain text.
type TextFileReader struct{}

func (r *TextFileReader) CanRead(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".txt" || ext == ".md"
}

func (r *TextFileReader) ReadText(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}

	return string(buf), nil
}

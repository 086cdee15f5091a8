// Package chunker splits raw document text into overlapping segments
// suitable for embedding and retrieval.
package chunker

import (
	"errors"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid chunk config")

// Config describes how a document is split before embedding.
type Config struct {
	Separator    string `yaml:"separator"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return ErrInvalidConfig
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return ErrInvalidConfig
	}

	return nil
}

// Split breaks text on cfg.Separator and regroups the fragments into
// windows of at most cfg.ChunkSize characters, carrying up to
// cfg.ChunkOverlap trailing characters between consecutive windows.
// Fragments longer than the window fall back to a character sliding window.
func Split(text string, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(text) == 0 {
		return []string{}, nil
	}

	var chunks []string
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			chunks = append(chunks, s)
		}
	}

	var cur string
	for _, part := range splitKeepSep(text, cfg.Separator) {
		if len(part) > cfg.ChunkSize {
			emit(cur)
			cur = ""
			for _, w := range window(part, cfg.ChunkSize, cfg.ChunkOverlap) {
				emit(w)
			}
			continue
		}

		if len(cur)+len(part) <= cfg.ChunkSize {
			cur += part
			continue
		}

		emit(cur)
		tail := cur[len(cur)-min(cfg.ChunkOverlap, len(cur)):]
		if len(tail)+len(part) <= cfg.ChunkSize {
			cur = tail + part
		} else {
			cur = part
		}
	}
	emit(cur)

	if chunks == nil {
		// Whitespace-only input still yields one chunk.
		return []string{text}, nil
	}

	return chunks, nil
}

func splitKeepSep(text, sep string) []string {
	if sep == "" {
		return []string{text}
	}

	return strings.SplitAfter(text, sep)
}

// window slides a fixed-size frame over text, repeating overlap characters
// between consecutive frames.
func window(text string, size, overlap int) []string {
	l := len(text)
	if l == 0 {
		return []string{}
	}

	step := size - overlap
	pos := 0
	res := make([]string, 0, l/step+1)

	for {
		end := min(pos+size, l)
		res = append(res, text[pos:end])
		if end >= l {
			break
		}

		pos += step
	}

	return res
}

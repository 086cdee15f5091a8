package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest returns the deterministic content digest used for deduplication
// and change detection. Line endings and surrounding whitespace are
// normalized first so the same logical content always hashes identically.
func Digest(content string) string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.TrimSpace(normalized)

	sum := sha256.Sum256([]byte(normalized))

	return hex.EncodeToString(sum[:])
}

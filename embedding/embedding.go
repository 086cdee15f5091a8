// Package embedding turns chunk and query text into fixed-size vectors.
package embedding

import "context"

// Embedder is the capability consumed by the ingestion pipeline and the
// query path. Implementations call out to an external model provider.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

package embedding

import (
	"context"
	"fmt"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// ChromaFunction adapts a chroma-go embedding function (OpenAI, Gemini, ...)
// to the Embedder interface so both vector store backends share one
// embedding path.
type ChromaFunction struct {
	ef embeddings.EmbeddingFunction
}

func FromChromaFunction(ef embeddings.EmbeddingFunction) *ChromaFunction {
	return &ChromaFunction{ef: ef}
}

func (c *ChromaFunction) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embs, err := c.ef.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(embs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(embs), len(texts))
	}

	vectors := make([][]float32, 0, len(embs))
	for _, e := range embs {
		vectors = append(vectors, e.ContentAsFloat32())
	}

	return vectors, nil
}

func (c *ChromaFunction) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	emb, err := c.ef.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return emb.ContentAsFloat32(), nil
}

package docstore

import (
	"context"
	"fmt"
	"sync"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// Metadata attribute keys stored next to each chunk.
const (
	MetaSource  = "source"
	MetaOrdinal = "ordinal"
)

// ChromaStore is the remote backend, talking to a hosted Chroma instance.
// Writes for a source are serialized under a store-level lock so readers
// never observe a partially replaced source.
type ChromaStore struct {
	mu          sync.RWMutex
	col         chroma.Collection
	requestSize int
}

type ChromaConfig struct {
	BaseURL     string
	Collection  string
	RequestSize int
	Reset       bool
}

func NewChromaStore(ctx context.Context, cfg ChromaConfig) (*ChromaStore, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	if cfg.Reset {
		if err := client.DeleteCollection(ctx, cfg.Collection); err != nil {
			return nil, fmt.Errorf("%w: failed to reset collection: %w", ErrConnection, err)
		}
	}

	col, err := client.GetOrCreateCollection(ctx, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open collection %s: %w", ErrConnection, cfg.Collection, err)
	}

	return &ChromaStore{col: col, requestSize: cfg.RequestSize}, nil
}

func (ds *ChromaStore) Upsert(ctx context.Context, source string, chunks []Chunk) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	err := ds.col.Delete(ctx, chroma.WithWhereDelete(chroma.EqString(MetaSource, source)))
	if err != nil {
		return fmt.Errorf("%w: failed to clear source %s: %w", ErrConnection, source, err)
	}

	for _, bucket := range ds.buckets(chunks) {
		texts := make([]string, 0, len(bucket))
		embs := make([]embeddings.Embedding, 0, len(bucket))
		metas := make([]chroma.DocumentMetadata, 0, len(bucket))
		for _, c := range bucket {
			texts = append(texts, c.Text)
			embs = append(embs, embeddings.NewEmbeddingFromFloat32(c.Vector))
			metas = append(metas, chroma.NewDocumentMetadata(
				chroma.NewStringAttribute(MetaSource, source),
				chroma.NewIntAttribute(MetaOrdinal, int64(c.Ordinal)),
			))
		}

		err := ds.col.Add(ctx,
			chroma.WithTexts(texts...),
			chroma.WithEmbeddings(embs...),
			chroma.WithIDGenerator(chroma.NewULIDGenerator()),
			chroma.WithMetadatas(metas...),
		)
		if err != nil {
			return fmt.Errorf("%w: failed to add chunks for source %s: %w", ErrConnection, source, err)
		}
	}

	return nil
}

func (ds *ChromaStore) Search(ctx context.Context, vector []float32, topK int, source string) ([]ScoredChunk, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	opts := []chroma.CollectionQueryOption{
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chroma.WithNResults(topK),
	}
	if source != "" {
		opts = append(opts, chroma.WithWhereQuery(chroma.EqString(MetaSource, source)))
	}

	r, err := ds.col.Query(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to retrieve chunks: %w", ErrConnection, err)
	}

	docs := r.GetDocumentsGroups()[0]
	metadatas := r.GetMetadatasGroups()[0]
	distances := r.GetDistancesGroups()[0]

	res := make([]ScoredChunk, 0, len(docs))
	for i := range docs {
		src, _ := metadatas[i].GetString(MetaSource)
		ord, _ := metadatas[i].GetInt(MetaOrdinal)
		res = append(res, ScoredChunk{
			Chunk: Chunk{
				Source:  src,
				Ordinal: int(ord),
				Text:    docs[i].ContentString(),
			},
			// Chroma reports cosine distance; expose descending similarity.
			Score: 1 - float32(distances[i]),
		})
	}

	return res, nil
}

func (ds *ChromaStore) Delete(ctx context.Context, source string) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	err := ds.col.Delete(ctx, chroma.WithWhereDelete(chroma.EqString(MetaSource, source)))
	if err != nil {
		return fmt.Errorf("%w: failed to delete source %s: %w", ErrConnection, source, err)
	}

	return nil
}

// buckets splits chunks into groups whose combined text stays under the
// configured request size, so large documents do not exceed the server's
// payload limit.
func (ds *ChromaStore) buckets(chunks []Chunk) [][]Chunk {
	if ds.requestSize <= 0 {
		return [][]Chunk{chunks}
	}

	var res [][]Chunk
	var cur []Chunk
	size := 0
	for _, c := range chunks {
		if len(cur) > 0 && size+len(c.Text) > ds.requestSize {
			res = append(res, cur)
			cur = nil
			size = 0
		}

		cur = append(cur, c)
		size += len(c.Text)
	}
	if len(cur) > 0 {
		res = append(res, cur)
	}

	return res
}

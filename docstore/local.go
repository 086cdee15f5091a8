package docstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// LocalStore is the in-process backend, backed by chromem-go with optional
// on-disk persistence. Vectors are always supplied by the caller; the
// collection's embedding function is never invoked.
type LocalStore struct {
	mu  sync.RWMutex
	col *chromem.Collection
}

type LocalConfig struct {
	// Path enables persistence when non-empty; an empty path keeps the
	// store purely in memory.
	Path       string
	Collection string
}

func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	var db *chromem.DB
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open local vector store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("local store received text without a vector")
	}

	col, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Collection, err)
	}

	return &LocalStore{col: col}, nil
}

func (ds *LocalStore) Upsert(ctx context.Context, source string, chunks []Chunk) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if err := ds.deleteLocked(ctx, source); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:        chunkID(source, c.Ordinal),
			Content:   c.Text,
			Embedding: c.Vector,
			Metadata: map[string]string{
				MetaSource:  source,
				MetaOrdinal: strconv.Itoa(c.Ordinal),
			},
		})
	}

	if err := ds.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add chunks for source %s: %w", source, err)
	}

	return nil
}

func (ds *LocalStore) Search(ctx context.Context, vector []float32, topK int, source string) ([]ScoredChunk, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	n := min(topK, ds.col.Count())
	if n <= 0 {
		return nil, nil
	}

	var where map[string]string
	if source != "" {
		where = map[string]string{MetaSource: source}
	}

	hits, err := ds.col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query local store: %w", err)
	}

	res := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		ord, _ := strconv.Atoi(h.Metadata[MetaOrdinal])
		res = append(res, ScoredChunk{
			Chunk: Chunk{
				ID:      h.ID,
				Source:  h.Metadata[MetaSource],
				Ordinal: ord,
				Text:    h.Content,
			},
			Score: h.Similarity,
		})
	}

	// chromem orders by similarity; keep ties in original chunk order.
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Score != res[j].Score {
			return res[i].Score > res[j].Score
		}
		return res[i].Ordinal < res[j].Ordinal
	})

	return res, nil
}

func (ds *LocalStore) Delete(ctx context.Context, source string) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.deleteLocked(ctx, source)
}

func (ds *LocalStore) deleteLocked(ctx context.Context, source string) error {
	if ds.col.Count() == 0 {
		return nil
	}

	err := ds.col.Delete(ctx, map[string]string{MetaSource: source}, nil)
	if err != nil {
		return fmt.Errorf("failed to delete source %s: %w", source, err)
	}

	return nil
}

func chunkID(source string, ordinal int) string {
	return fmt.Sprintf("%s#%05d", source, ordinal)
}

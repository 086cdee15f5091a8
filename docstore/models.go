// Package docstore provides polymorphic storage and retrieval of embedded
// document chunks across interchangeable vector store backends.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrConnection marks a backend that is unreachable or rejected the
// credentials. An empty search result is not an error.
var ErrConnection = errors.New("vector store connection failed")

// Chunk is a contiguous span of a source's text plus its embedding vector.
// Chunks never exist independent of a source.
type Chunk struct {
	ID      string
	Source  string
	Ordinal int
	Text    string
	Vector  []float32
}

// ScoredChunk pairs a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Store is the uniform contract shared by all backends. Upsert replaces any
// existing chunks for the source atomically from the caller's perspective.
// Search returns up to topK chunks by cosine similarity, descending; source
// restricts results to one source when non-empty. Delete is idempotent.
type Store interface {
	Upsert(ctx context.Context, source string, chunks []Chunk) error
	Search(ctx context.Context, vector []float32, topK int, source string) ([]ScoredChunk, error)
	Delete(ctx context.Context, source string) error
}

// Selector picks which backend implementation serves a call.
type Selector string

const (
	SelectorLocal  Selector = "local"
	SelectorRemote Selector = "remote"
)

func ParseSelector(s string) (Selector, error) {
	switch Selector(s) {
	case SelectorLocal, SelectorRemote:
		return Selector(s), nil
	}

	return "", fmt.Errorf("unknown vector store selector: %q", s)
}

// Backends maps selectors to concrete stores so call sites never branch on
// backend type.
type Backends struct {
	stores map[Selector]Store
}

func NewBackends() *Backends {
	return &Backends{stores: make(map[Selector]Store)}
}

func (b *Backends) Register(sel Selector, store Store) {
	b.stores[sel] = store
}

func (b *Backends) For(sel Selector) (Store, error) {
	store, ok := b.stores[sel]
	if !ok {
		return nil, fmt.Errorf("no vector store registered for selector %q", sel)
	}

	return store, nil
}

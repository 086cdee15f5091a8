// Package ingest orchestrates the chunk, embed and store pipeline for one
// or many documents, enforcing digest-based deduplication.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gamma-omg/contextqa/catalog"
	"github.com/gamma-omg/contextqa/chunker"
	"github.com/gamma-omg/contextqa/docstore"
	"github.com/gamma-omg/contextqa/embedding"
)

// ErrDuplicatedSource signals a hard re-ingest of unchanged content, so the
// caller can distinguish a conflict from a generic failure.
var ErrDuplicatedSource = errors.New("source already exists with unchanged content")

// Document is one named unit of raw text submitted for ingestion.
type Document struct {
	Name    string
	Content string
}

// Outcome statuses per document.
const (
	OutcomeStored    = "stored"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

type Outcome struct {
	Name   string
	Status string
	Cause  string
}

// Result summarizes one ingestion call. It is transient, never persisted.
type Result struct {
	Outcomes   []Outcome
	Stored     int
	Duplicates int
	Failed     int
}

func (r *Result) record(name, status, cause string) {
	r.Outcomes = append(r.Outcomes, Outcome{Name: name, Status: status, Cause: cause})
	switch status {
	case OutcomeStored:
		r.Stored++
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeFailed:
		r.Failed++
	}
}

// Catalog is the narrow slice of the source catalog the pipeline needs.
type Catalog interface {
	FindByName(ctx context.Context, name string) (*catalog.Source, error)
	Upsert(ctx context.Context, name, digest, status string) (*catalog.Source, error)
}

// Processor runs the ingestion pipeline against one vector store backend.
type Processor struct {
	log      *slog.Logger
	catalog  Catalog
	store    docstore.Store
	embedder embedding.Embedder
}

func NewProcessor(log *slog.Logger, cat Catalog, store docstore.Store, embedder embedding.Embedder) *Processor {
	if log == nil {
		log = slog.Default()
	}

	return &Processor{log: log, catalog: cat, store: store, embedder: embedder}
}

// Ingest stores a single document. Re-ingesting unchanged content fails
// with ErrDuplicatedSource; changed content replaces the previous chunks.
func (p *Processor) Ingest(ctx context.Context, doc Document, cfg chunker.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	status, err := p.ingestOne(ctx, doc, cfg)
	if err != nil {
		return nil, err
	}
	if status == OutcomeDuplicate {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatedSource, doc.Name)
	}

	res.record(doc.Name, status, "")

	return res, nil
}

// IngestBatch stores many documents. Documents are independent: duplicates
// are skipped and recorded, per-document failures are recorded without
// aborting the rest. A vector store connection failure aborts the remaining
// pipeline, since connectivity is not a per-document condition.
func (p *Processor) IngestBatch(ctx context.Context, docs []Document, cfg chunker.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, doc := range docs {
		status, err := p.ingestOne(ctx, doc, cfg)
		if errors.Is(err, docstore.ErrConnection) {
			return res, err
		}
		if err != nil {
			p.log.Error("failed to ingest document", "name", doc.Name, "error", err)
			res.record(doc.Name, OutcomeFailed, err.Error())
			continue
		}

		res.record(doc.Name, status, "")
	}

	return res, nil
}

func (p *Processor) ingestOne(ctx context.Context, doc Document, cfg chunker.Config) (string, error) {
	digest := Digest(doc.Content)

	existing, err := p.catalog.FindByName(ctx, doc.Name)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.Digest == digest {
		p.log.Debug("skipping unchanged source", "name", doc.Name)
		return OutcomeDuplicate, nil
	}

	chunks, err := chunker.Split(doc.Content, cfg)
	if err != nil {
		return "", err
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return "", fmt.Errorf("failed to embed chunks for %s: %w", doc.Name, err)
	}
	if len(vectors) != len(chunks) {
		return "", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	stored := make([]docstore.Chunk, 0, len(chunks))
	for i, text := range chunks {
		stored = append(stored, docstore.Chunk{
			Source:  doc.Name,
			Ordinal: i,
			Text:    text,
			Vector:  vectors[i],
		})
	}

	// Upsert replaces any previous chunks for the source; the catalog
	// digest is committed only after the vectors are fully in place.
	if err := p.store.Upsert(ctx, doc.Name, stored); err != nil {
		return "", err
	}
	if _, err := p.catalog.Upsert(ctx, doc.Name, digest, catalog.StatusReady); err != nil {
		return "", fmt.Errorf("failed to commit source %s to catalog: %w", doc.Name, err)
	}

	p.log.Info("ingested source", "name", doc.Name, "chunks", len(stored), "updated", existing != nil)

	return OutcomeStored, nil
}

// Package rag combines ingestion and retrieval-augmented answering behind a
// per-backend façade.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gamma-omg/contextqa/chunker"
	"github.com/gamma-omg/contextqa/docstore"
	"github.com/gamma-omg/contextqa/embedding"
	"github.com/gamma-omg/contextqa/ingest"
	"github.com/gamma-omg/contextqa/llm"
)

// DefaultTopK is the number of chunks retrieved as grounding context.
const DefaultTopK = 4

const answerSystemPrompt = "You are a helpful assistant called ContextQA that answers questions " +
	"using only the provided context. If the context does not contain the answer, say so."

// Answer is the result of one grounded question: the model's response plus
// the sources the grounding context came from.
type Answer struct {
	Text    string
	Sources []string
}

// Setter ties one vector store backend to the ingestion pipeline and the
// query path.
type Setter struct {
	log       *slog.Logger
	processor *ingest.Processor
	store     docstore.Store
	embedder  embedding.Embedder
	model     llm.Client
	topK      int
}

func NewSetter(log *slog.Logger, processor *ingest.Processor, store docstore.Store,
	embedder embedding.Embedder, model llm.Client, topK int) *Setter {
	if log == nil {
		log = slog.Default()
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	return &Setter{
		log:       log,
		processor: processor,
		store:     store,
		embedder:  embedder,
		model:     model,
		topK:      topK,
	}
}

// Persist ingests documents into this setter's backend.
func (s *Setter) Persist(ctx context.Context, docs []ingest.Document, cfg chunker.Config) (*ingest.Result, error) {
	return s.processor.IngestBatch(ctx, docs, cfg)
}

// PersistOne ingests a single document with the hard duplicate contract.
func (s *Setter) PersistOne(ctx context.Context, doc ingest.Document, cfg chunker.Config) (*ingest.Result, error) {
	return s.processor.Ingest(ctx, doc, cfg)
}

// Retrieve embeds the question and returns the topK most similar chunks,
// optionally scoped to a single source.
func (s *Setter) Retrieve(ctx context.Context, question, source string) ([]docstore.ScoredChunk, error) {
	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	return s.store.Search(ctx, vector, s.topK, source)
}

// LoadAndRespond answers the question grounded in the knowledge base,
// optionally scoped to a single source.
func (s *Setter) LoadAndRespond(ctx context.Context, question, source string) (*Answer, error) {
	hits, err := s.Retrieve(ctx, question, source)
	if err != nil {
		return nil, err
	}

	text, err := s.model.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: answerSystemPrompt},
		{Role: llm.RoleUser, Content: buildPrompt(question, hits)},
	}, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	s.log.Debug("answered question", "chunks", len(hits), "scoped", source != "")

	return &Answer{Text: text, Sources: sourcesOf(hits)}, nil
}

func buildPrompt(question string, hits []docstore.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	if len(hits) == 0 {
		b.WriteString("(no relevant context found)\n")
	}
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s\n", h.Text)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	return b.String()
}

// sourcesOf returns the unique source names in retrieval order.
func sourcesOf(hits []docstore.ScoredChunk) []string {
	seen := make(map[string]struct{}, len(hits))
	sources := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.Source]; ok {
			continue
		}
		seen[h.Source] = struct{}{}
		sources = append(sources, h.Source)
	}

	return sources
}

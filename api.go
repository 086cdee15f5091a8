package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gamma-omg/contextqa/catalog"
	"github.com/gamma-omg/contextqa/chat"
	"github.com/gamma-omg/contextqa/chunker"
	"github.com/gamma-omg/contextqa/docstore"
	"github.com/gamma-omg/contextqa/ingest"
	"github.com/gamma-omg/contextqa/rag"
)

const maxUploadSize = 64 << 20 // 64 MiB

type sourceLister interface {
	List(ctx context.Context, limit, skip int) ([]catalog.Source, int, error)
	ExistsAny(ctx context.Context) (bool, error)
}

type chatStreamer interface {
	Stream(ctx context.Context, session, message string, internetAccess bool) <-chan chat.Fragment
}

type apiServer struct {
	log      *slog.Logger
	setters  *rag.Setters
	engine   chatStreamer
	catalog  sourceLister
	defaults chunker.Config
}

func newAPIServer(log *slog.Logger, setters *rag.Setters, engine chatStreamer,
	cat sourceLister, defaults chunker.Config) *apiServer {
	if log == nil {
		log = slog.Default()
	}

	return &apiServer{log: log, setters: setters, engine: engine, catalog: cat, defaults: defaults}
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST /sources/ingest", s.handleIngest)
	mux.HandleFunc("GET /sources", s.handleListSources)
	mux.HandleFunc("GET /sources/check-availability", s.handleAvailability)
	mux.HandleFunc("GET /context/query", s.handleQuery)
	mux.HandleFunc("POST /chat", s.handleChat)

	return mux
}

type apiError struct {
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to write response", "error", err)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string, cause error) {
	e := apiError{Message: message}
	if cause != nil {
		e.Cause = cause.Error()
	}
	s.writeJSON(w, status, e)
}

func (s *apiServer) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "Pong!")
}

type outcomeDTO struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Cause  string `json:"cause,omitempty"`
}

type ingestResponse struct {
	Stored     int          `json:"stored"`
	Duplicates int          `json:"duplicates"`
	Failed     int          `json:"failed"`
	Outcomes   []outcomeDTO `json:"outcomes"`
}

func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart request", err)
		return
	}

	setter, ok := s.setterFor(w, r.FormValue("store"))
	if !ok {
		return
	}

	cfg, err := s.chunkConfigFrom(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid chunk configuration", err)
		return
	}

	files := r.MultipartForm.File["documents"]
	if len(files) == 0 {
		s.writeError(w, http.StatusBadRequest, "no documents attached", nil)
		return
	}

	docs := make([]ingest.Document, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to open uploaded file", err)
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to read uploaded file", err)
			return
		}

		docs = append(docs, ingest.Document{Name: fh.Filename, Content: string(content)})
	}

	var res *ingest.Result
	if len(docs) == 1 {
		res, err = setter.PersistOne(r.Context(), docs[0], cfg)
	} else {
		res, err = setter.Persist(r.Context(), docs, cfg)
	}
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrDuplicatedSource):
			s.writeError(w, http.StatusConflict, "source already exists with identical content", err)
		case errors.Is(err, docstore.ErrConnection):
			s.writeError(w, http.StatusFailedDependency, "vector store unavailable", err)
		case errors.Is(err, chunker.ErrInvalidConfig):
			s.writeError(w, http.StatusBadRequest, "invalid chunk configuration", err)
		default:
			s.writeError(w, http.StatusInternalServerError, "ingestion failed", err)
		}
		return
	}

	resp := ingestResponse{Stored: res.Stored, Duplicates: res.Duplicates, Failed: res.Failed}
	for _, o := range res.Outcomes {
		resp.Outcomes = append(resp.Outcomes, outcomeDTO(o))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// chunkConfigFrom merges per-request form overrides over the configured
// defaults.
func (s *apiServer) chunkConfigFrom(r *http.Request) (chunker.Config, error) {
	cfg := s.defaults
	if sep := r.FormValue("separator"); sep != "" {
		cfg.Separator = sep
	}
	if v := r.FormValue("chunk_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("chunk_size is not a number: %w", err)
		}
		cfg.ChunkSize = size
	}
	if v := r.FormValue("chunk_overlap"); v != "" {
		overlap, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("chunk_overlap is not a number: %w", err)
		}
		cfg.ChunkOverlap = overlap
	}

	return cfg, cfg.Validate()
}

func (s *apiServer) setterFor(w http.ResponseWriter, store string) (*rag.Setter, bool) {
	if store == "" {
		store = string(docstore.SelectorLocal)
	}

	setter, err := s.setters.For(docstore.Selector(store))
	if err != nil {
		var notConfigured *rag.NotConfiguredError
		if errors.As(err, &notConfigured) {
			s.writeError(w, http.StatusFailedDependency, "store backend not configured", err)
		} else {
			s.writeError(w, http.StatusBadRequest, "unknown store backend", err)
		}
		return nil, false
	}

	return setter, true
}

type queryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources_used"`
}

func (s *apiServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")
	if question == "" {
		s.writeError(w, http.StatusBadRequest, "question is required", nil)
		return
	}

	setter, ok := s.setterFor(w, r.URL.Query().Get("processor"))
	if !ok {
		return
	}

	answer, err := setter.LoadAndRespond(r.Context(), question, r.URL.Query().Get("identifier"))
	if err != nil {
		if errors.Is(err, docstore.ErrConnection) {
			s.writeError(w, http.StatusFailedDependency, "vector store unavailable", err)
		} else {
			s.writeError(w, http.StatusInternalServerError, "failed to answer question", err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, queryResponse{Answer: answer.Text, Sources: answer.Sources})
}

type sourceDTO struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Digest string `json:"digest"`
	Status string `json:"status"`
}

type listSourcesResponse struct {
	Sources []sourceDTO `json:"sources"`
	Total   int         `json:"total"`
}

const defaultListLimit = 10

func (s *apiServer) handleListSources(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil || limit < 1 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive number", err)
		return
	}
	skip, err := intParam(r, "skip", 0)
	if err != nil || skip < 0 {
		s.writeError(w, http.StatusBadRequest, "skip must be a non-negative number", err)
		return
	}

	sources, total, err := s.catalog.List(r.Context(), limit, skip)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list sources", err)
		return
	}

	resp := listSourcesResponse{Sources: make([]sourceDTO, 0, len(sources)), Total: total}
	for _, src := range sources {
		resp.Sources = append(resp.Sources, sourceDTO{
			ID:     src.ID,
			Title:  src.Name,
			Digest: src.Digest,
			Status: src.Status,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func (s *apiServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	ready, err := s.catalog.ExistsAny(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to check catalog", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

type chatRequest struct {
	Message        string `json:"message"`
	InternetAccess bool   `json:"internet_access"`
}

func (s *apiServer) handleChat(w http.ResponseWriter, r *http.Request) {
	session := r.Header.Get("X-Session-ID")
	if session == "" {
		s.writeError(w, http.StatusBadRequest, "X-Session-ID header is required", nil)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frag := range s.engine.Stream(r.Context(), session, req.Message, req.InternetAccess) {
		if frag.Err != nil {
			writeSSE(w, "error", frag.Err.Error())
			flusher.Flush()
			return
		}

		writeSSE(w, "", frag.Text)
		flusher.Flush()
	}

	writeSSE(w, "done", "[DONE]")
	flusher.Flush()
}

// writeSSE frames one server-sent event; multi-line payloads become multiple
// data lines of the same event.
func writeSSE(w io.Writer, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

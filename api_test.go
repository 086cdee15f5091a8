package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gamma-omg/contextqa/catalog"
	"github.com/gamma-omg/contextqa/chat"
	"github.com/gamma-omg/contextqa/chunker"
	"github.com/gamma-omg/contextqa/docstore"
	"github.com/gamma-omg/contextqa/ingest"
	"github.com/gamma-omg/contextqa/llm"
	"github.com/gamma-omg/contextqa/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVecStore struct {
	hits        []docstore.ScoredChunk
	upserted    map[string][]docstore.Chunk
	failConnect bool
}

func newFakeVecStore() *fakeVecStore {
	return &fakeVecStore{upserted: make(map[string][]docstore.Chunk)}
}

func (s *fakeVecStore) Upsert(ctx context.Context, source string, chunks []docstore.Chunk) error {
	if s.failConnect {
		return fmt.Errorf("%w: store unreachable", docstore.ErrConnection)
	}
	s.upserted[source] = chunks
	return nil
}

func (s *fakeVecStore) Search(ctx context.Context, vector []float32, topK int, source string) ([]docstore.ScoredChunk, error) {
	return s.hits, nil
}

func (s *fakeVecStore) Delete(ctx context.Context, source string) error {
	delete(s.upserted, source)
	return nil
}

type fakeVecEmbedder struct{}

func (e *fakeVecEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (e *fakeVecEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fakeChatModel struct {
	answer string
}

func (m *fakeChatModel) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	return m.answer, nil
}

func (m *fakeChatModel) ChatStream(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Stream, error) {
	panic("not implemented")
}

type fakeStreamer struct {
	fragments []chat.Fragment
}

func (s *fakeStreamer) Stream(ctx context.Context, session, message string, internetAccess bool) <-chan chat.Fragment {
	out := make(chan chat.Fragment, len(s.fragments))
	for _, f := range s.fragments {
		out <- f
	}
	close(out)
	return out
}

type apiFixture struct {
	srv    *httptest.Server
	store  *fakeVecStore
	cat    *catalog.Catalog
	stream *fakeStreamer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cat, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newFakeVecStore()
	proc := ingest.NewProcessor(log, cat, store, &fakeVecEmbedder{})
	setter := rag.NewSetter(log, proc, store, &fakeVecEmbedder{}, &fakeChatModel{answer: "The sky is blue."}, 0)

	setters := rag.NewSetters()
	setters.Register(docstore.SelectorLocal, setter)

	stream := &fakeStreamer{fragments: []chat.Fragment{{Text: "Hel"}, {Text: "lo"}}}
	api := newAPIServer(log, setters, stream, cat, chunker.Config{Separator: ".", ChunkSize: 100, ChunkOverlap: 10})

	srv := httptest.NewServer(api.routes())
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, store: store, cat: cat, stream: stream}
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := w.CreateFormFile("documents", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func Test_Ping(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Pong!", string(body))
}

func Test_Ingest_StoresDocument(t *testing.T) {
	fx := newAPIFixture(t)

	buf, contentType := multipartBody(t, nil, map[string]string{"sky.txt": "The sky is blue."})
	resp, err := http.Post(fx.srv.URL+"/sources/ingest", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res ingestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 1, res.Stored)
	assert.NotEmpty(t, fx.store.upserted["sky.txt"])
}

func Test_Ingest_DuplicateConflict(t *testing.T) {
	fx := newAPIFixture(t)

	buf, contentType := multipartBody(t, nil, map[string]string{"sky.txt": "The sky is blue."})
	resp, err := http.Post(fx.srv.URL+"/sources/ingest", contentType, buf)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf, contentType = multipartBody(t, nil, map[string]string{"sky.txt": "The sky is blue."})
	resp, err = http.Post(fx.srv.URL+"/sources/ingest", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var e apiError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.NotEmpty(t, e.Message)
}

func Test_Ingest_BatchSkipsDuplicates(t *testing.T) {
	fx := newAPIFixture(t)

	buf, contentType := multipartBody(t, nil, map[string]string{"a.txt": "Content A."})
	resp, err := http.Post(fx.srv.URL+"/sources/ingest", contentType, buf)
	require.NoError(t, err)
	resp.Body.Close()

	buf, contentType = multipartBody(t, nil, map[string]string{
		"a.txt": "Content A.",
		"b.txt": "Content B.",
	})
	resp, err = http.Post(fx.srv.URL+"/sources/ingest", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res ingestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 1, res.Duplicates)
}

func Test_Ingest_StoreUnavailable(t *testing.T) {
	fx := newAPIFixture(t)
	fx.store.failConnect = true

	buf, contentType := multipartBody(t, nil, map[string]string{"sky.txt": "The sky is blue."})
	resp, err := http.Post(fx.srv.URL+"/sources/ingest", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFailedDependency, resp.StatusCode)
}

func Test_Ingest_InvalidChunkConfig(t *testing.T) {
	fx := newAPIFixture(t)

	buf, contentType := multipartBody(t,
		map[string]string{"chunk_size": "10", "chunk_overlap": "20"},
		map[string]string{"sky.txt": "The sky is blue."})
	resp, err := http.Post(fx.srv.URL+"/sources/ingest", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, fx.store.upserted)
}

func Test_Ingest_UnknownStore(t *testing.T) {
	fx := newAPIFixture(t)

	buf, contentType := multipartBody(t,
		map[string]string{"store": "bogus"},
		map[string]string{"sky.txt": "The sky is blue."})
	resp, err := http.Post(fx.srv.URL+"/sources/ingest", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_Query(t *testing.T) {
	fx := newAPIFixture(t)
	fx.store.hits = []docstore.ScoredChunk{
		{Chunk: docstore.Chunk{Source: "sky.txt", Text: "The sky is blue"}, Score: 0.9},
	}

	resp, err := http.Get(fx.srv.URL + "/context/query?question=What+color+is+the+sky%3F")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res queryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "The sky is blue.", res.Answer)
	assert.Equal(t, []string{"sky.txt"}, res.Sources)
}

func Test_Query_MissingQuestion(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.srv.URL + "/context/query")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_ListSources(t *testing.T) {
	fx := newAPIFixture(t)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := fx.cat.Upsert(ctx, fmt.Sprintf("doc%d.txt", i), fmt.Sprintf("digest%d", i), catalog.StatusReady)
		require.NoError(t, err)
	}

	resp, err := http.Get(fx.srv.URL + "/sources?limit=2&skip=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res listSourcesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "doc2.txt", res.Sources[0].Title)
	assert.Equal(t, "doc3.txt", res.Sources[1].Title)
}

func Test_ListSources_DefaultsToFirstTen(t *testing.T) {
	fx := newAPIFixture(t)

	ctx := context.Background()
	for i := 1; i <= 12; i++ {
		_, err := fx.cat.Upsert(ctx, fmt.Sprintf("doc%02d.txt", i), fmt.Sprintf("digest%d", i), catalog.StatusReady)
		require.NoError(t, err)
	}

	resp, err := http.Get(fx.srv.URL + "/sources")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res listSourcesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 12, res.Total)
	require.Len(t, res.Sources, 10)
	assert.Equal(t, "doc01.txt", res.Sources[0].Title)
	assert.Equal(t, "doc10.txt", res.Sources[9].Title)
}

func Test_ListSources_InvalidParams(t *testing.T) {
	fx := newAPIFixture(t)

	for _, query := range []string{"limit=0", "limit=-1", "limit=abc", "skip=-1", "skip=abc"} {
		resp, err := http.Get(fx.srv.URL + "/sources?" + query)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func Test_CheckAvailability(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.srv.URL + "/sources/check-availability")
	require.NoError(t, err)
	defer resp.Body.Close()

	var res map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.False(t, res["ready"])

	_, err = fx.cat.Upsert(context.Background(), "doc.txt", "digest", catalog.StatusReady)
	require.NoError(t, err)

	resp, err = http.Get(fx.srv.URL + "/sources/check-availability")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.True(t, res["ready"])
}

func Test_Chat_StreamsSSE(t *testing.T) {
	fx := newAPIFixture(t)

	req, err := http.NewRequest(http.MethodPost, fx.srv.URL+"/chat",
		strings.NewReader(`{"message":"Hi","internet_access":false}`))
	require.NoError(t, err)
	req.Header.Set("X-Session-ID", "s1")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "data: Hel\n")
	assert.Contains(t, string(body), "data: lo\n")
	assert.Contains(t, string(body), "event: done\n")
}

func Test_Chat_StreamError(t *testing.T) {
	fx := newAPIFixture(t)
	fx.stream.fragments = []chat.Fragment{
		{Text: "partial"},
		{Err: fmt.Errorf("model unavailable")},
	}

	req, err := http.NewRequest(http.MethodPost, fx.srv.URL+"/chat",
		strings.NewReader(`{"message":"Hi"}`))
	require.NoError(t, err)
	req.Header.Set("X-Session-ID", "s1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: error\n")
	assert.NotContains(t, string(body), "event: done\n")
}

func Test_Chat_MissingSession(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Post(fx.srv.URL+"/chat", "application/json",
		strings.NewReader(`{"message":"Hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

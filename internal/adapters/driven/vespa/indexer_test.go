package vespa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

type fedDocument struct {
	path   string
	fields vespaFields
}

func newFeedServer(t *testing.T, failOn string) (*httptest.Server, *[]fedDocument, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	var fed []fedDocument

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if failOn != "" && strings.HasSuffix(r.URL.Path, failOn) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"field embedding: wrong tensor type"}`))
			return
		}
		var doc vespaDocument
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		fed = append(fed, fedDocument{path: r.URL.Path, fields: doc.Fields})
		mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"ok"}`))
	}))
	t.Cleanup(server.Close)
	return server, &fed, &mu
}

func testChunks() []*domain.Chunk {
	return []*domain.Chunk{
		{ID: domain.ChunkID("item1", 1, 0), PageNumber: 1, LocalIndex: 0, Text: "Alpha beta.", TokenCount: 2, Embedding: []float32{0.1, 0.2}},
		{ID: domain.ChunkID("item1", 1, 1), PageNumber: 1, LocalIndex: 1, Text: "Gamma delta.", TokenCount: 2},
	}
}

func TestNewIndexer_Defaults(t *testing.T) {
	idx := NewIndexer(Config{BaseURL: "http://vespa:8080/"})

	assert.Equal(t, "http://vespa:8080", idx.baseURL)
	assert.Equal(t, "sercha", idx.namespace)
	assert.Equal(t, "sercha", idx.cluster)
	assert.NotZero(t, idx.httpClient.Timeout)
}

func TestIndexer_Index(t *testing.T) {
	server, fed, mu := newFeedServer(t, "")
	idx := NewIndexer(DefaultConfig(server.URL))

	require.NoError(t, idx.Index(context.Background(), "item1", testChunks()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *fed, 2)
	first := (*fed)[0]
	assert.Equal(t, "/document/v1/sercha/chunk/docid/item1_page_1_chunk_0", first.path)
	assert.Equal(t, "item1", first.fields.ItemID)
	assert.Equal(t, "Alpha beta.", first.fields.Content)
	assert.Equal(t, []float32{0.1, 0.2}, first.fields.Embedding)
	assert.Nil(t, (*fed)[1].fields.Embedding)
}

func TestIndexer_IndexFailure(t *testing.T) {
	server, fed, mu := newFeedServer(t, "item1_page_1_chunk_1")
	idx := NewIndexer(DefaultConfig(server.URL))

	err := idx.Index(context.Background(), "item1", testChunks())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexingFailed)
	assert.Contains(t, err.Error(), "wrong tensor type")

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, *fed, 1)
}

func TestIndexer_DeleteByItem(t *testing.T) {
	queries := make(chan url.Values, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/document/v1/sercha/chunk/docid/", r.URL.Path)
		q, _ := url.ParseQuery(r.URL.RawQuery)
		queries <- q
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	idx := NewIndexer(DefaultConfig(server.URL))
	require.NoError(t, idx.DeleteByItem(context.Background(), "item1"))

	q := <-queries
	assert.Equal(t, `chunk.item_id=="item1"`, q.Get("selection"))
	assert.Equal(t, "sercha", q.Get("cluster"))
}

func TestIndexer_DeleteByItemError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	idx := NewIndexer(DefaultConfig(server.URL))
	assert.Error(t, idx.DeleteByItem(context.Background(), "item1"))
}

func TestIndexer_HealthCheck(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/state/v1/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":{"code":"up"}}`))
	}))
	defer server.Close()

	idx := NewIndexer(DefaultConfig(server.URL))
	assert.NoError(t, idx.HealthCheck(context.Background()))

	healthy.Store(false)
	assert.ErrorIs(t, idx.HealthCheck(context.Background()), domain.ErrServiceUnavailable)
}

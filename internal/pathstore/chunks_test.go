package pathstore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/talentvec/internal/embed"
	"github.com/dgallion1/talentvec/internal/store"
)

// fakeKV is a minimal in-memory pathstore.
type fakeKV struct {
	mu      sync.Mutex
	nodes   map[string]json.RawMessage
	auth    string
	failPut string
	slowPut time.Duration
}

func newFakeKV() *fakeKV { return &fakeKV{nodes: make(map[string]json.RawMessage)} }

func (f *fakeKV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut && f.slowPut > 0 {
		time.Sleep(f.slowPut)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")
	w.Header().Set("Content-Type", "application/json")
	key := strings.TrimPrefix(r.URL.Path, "/kv/")

	switch {
	case r.Method == http.MethodPut:
		if f.failPut != "" && strings.HasSuffix(key, f.failPut) {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && strings.HasSuffix(key, "/*"):
		prefix := strings.TrimSuffix(key, "*")
		type node struct {
			Key   string          `json:"key_path"`
			Value json.RawMessage `json:"value"`
		}
		var out []node
		for k, v := range f.nodes {
			if strings.HasPrefix(k, prefix) {
				out = append(out, node{Key: k, Value: v})
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
		_ = json.NewEncoder(w).Encode(map[string]any{"nodes": out})
	case r.Method == http.MethodGet:
		v, ok := f.nodes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"key_path": key, "value": v})
	case r.Method == http.MethodDelete:
		for k := range f.nodes {
			if k == key || (r.URL.Query().Get("children") == "true" && strings.HasPrefix(k, key+"/")) {
				delete(f.nodes, k)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeKV) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.nodes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func newTestStore(t *testing.T) (*ChunkStore, *fakeKV) {
	t.Helper()
	kv := newFakeKV()
	srv := httptest.NewServer(kv)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "secret")
	t.Cleanup(client.Close)
	return NewChunkStore(client, "test", slog.New(slog.NewTextHandler(io.Discard, nil))), kv
}

func records(n int) []embed.Record { return runRecords("chunk", n) }

func runRecords(text string, n int) []embed.Record {
	out := make([]embed.Record, n)
	for i := range out {
		out[i] = embed.Record{
			DocumentID: "doc-1",
			ChunkText:  text,
			Embedding:  []float32{float32(i)},
			Metadata:   embed.Metadata{TokenCount: 2, ChunkIndex: i, MaxChunkIndex: n - 1},
		}
	}
	return out
}

func TestChunkStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Should write chunk nodes and a meta node", func(t *testing.T) {
		s, kv := newTestStore(t)
		n, err := s.ReplaceChunks(ctx, "doc-1", records(2))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{
			"test/documents/doc-1/chunks/00000",
			"test/documents/doc-1/chunks/00001",
			"test/documents/doc-1/meta",
		}, kv.keys())
		assert.Equal(t, "Bearer secret", kv.auth)
	})

	t.Run("Should list chunks in index order", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.ReplaceChunks(ctx, "doc-1", records(3))
		require.NoError(t, err)

		chunks, err := s.ListChunks(ctx, "doc-1")
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.Equal(t, 2, c.MaxChunkIndex)
			assert.Equal(t, []float32{float32(i)}, c.Embedding)
		}
	})

	t.Run("Should drop the previous set on replace", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.ReplaceChunks(ctx, "doc-1", records(3))
		require.NoError(t, err)
		_, err = s.ReplaceChunks(ctx, "doc-1", records(1))
		require.NoError(t, err)

		chunks, err := s.ListChunks(ctx, "doc-1")
		require.NoError(t, err)
		assert.Len(t, chunks, 1)
	})

	t.Run("Should remove partial writes when a put fails", func(t *testing.T) {
		s, kv := newTestStore(t)
		kv.failPut = "chunks/00001"
		_, err := s.ReplaceChunks(ctx, "doc-1", records(3))
		require.Error(t, err)
		assert.Empty(t, kv.keys())
	})

	t.Run("Should delete and report the stored count", func(t *testing.T) {
		s, kv := newTestStore(t)
		_, err := s.ReplaceChunks(ctx, "doc-1", records(4))
		require.NoError(t, err)

		n, err := s.DeleteChunks(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Empty(t, kv.keys())

		n, err = s.DeleteChunks(ctx, "doc-1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Should delete chunk nodes left without meta", func(t *testing.T) {
		s, kv := newTestStore(t)
		kv.nodes["test/documents/doc-1/chunks/00000"] = json.RawMessage(`{"chunk_index":0}`)
		kv.nodes["test/documents/doc-1/chunks/00001"] = json.RawMessage(`{"chunk_index":1}`)

		n, err := s.DeleteChunks(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Empty(t, kv.keys())
	})

	t.Run("Should never mix chunk sets from concurrent replaces", func(t *testing.T) {
		s, kv := newTestStore(t)
		kv.slowPut = 2 * time.Millisecond

		var wg sync.WaitGroup
		for _, run := range []struct {
			text string
			n    int
		}{{"run-a", 5}, {"run-b", 2}} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ReplaceChunks(ctx, "doc-1", runRecords(run.text, run.n))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		chunks, err := s.ListChunks(ctx, "doc-1")
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.Equal(t, chunks[0].Text, c.Text)
			assert.Equal(t, len(chunks)-1, c.MaxChunkIndex)
		}
	})

	t.Run("Should refuse ids that would reach another document's keys", func(t *testing.T) {
		s, kv := newTestStore(t)
		_, err := s.ReplaceChunks(ctx, "a", records(2))
		require.NoError(t, err)

		_, err = s.DeleteChunks(ctx, "a/chunks")
		assert.ErrorIs(t, err, store.ErrInvalidDocumentID)
		_, err = s.ReplaceChunks(ctx, "a/chunks", nil)
		assert.ErrorIs(t, err, store.ErrInvalidDocumentID)
		assert.Len(t, kv.keys(), 3)
	})
}

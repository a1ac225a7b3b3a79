package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-chunker/internal/agent/document"
)

func TestHashing_DeterministicAndTopical(t *testing.T) {
	h := NewHashing(128)
	ctx := context.Background()

	a, err := h.EmbedOne(ctx, "Revenue grew in the north region")
	require.NoError(t, err)
	again, err := h.EmbedOne(ctx, "Revenue grew in the north region")
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Len(t, a, 128)

	near, err := h.EmbedOne(ctx, "revenue grew in the south region")
	require.NoError(t, err)
	far, err := h.EmbedOne(ctx, "kittens chase yarn under sofas")
	require.NoError(t, err)

	simNear, err := CosineSimilarity(a, near)
	require.NoError(t, err)
	simFar, err := CosineSimilarity(a, far)
	require.NoError(t, err)
	assert.Greater(t, simNear, simFar)

	self, err := CosineSimilarity(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, self, 1e-9)
}

func TestHashing_BatchKeepsOrder(t *testing.T) {
	h := NewHashing(256)
	vecs, err := h.EmbedBatch(context.Background(), []string{"one", "two words", "one"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestCosineSimilarity_Errors(t *testing.T) {
	_, err := CosineSimilarity([]float64{1, 0}, []float64{1})
	assert.Error(t, err)
	_, err = CosineSimilarity([]float64{0, 0}, []float64{1, 0})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	p, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Hashing{}, p)
	assert.Equal(t, 256, p.Dimensions())

	_, err = New(Config{Provider: "openai"}, nil)
	assert.ErrorIs(t, err, document.ErrCollaboratorUnavailable)

	_, err = New(Config{Provider: "word2vec"}, nil)
	assert.ErrorIs(t, err, document.ErrCollaboratorUnavailable)

	p, err = New(Config{Provider: "ollama"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, p)
}

func TestBatches(t *testing.T) {
	got := batches([]string{"a", "b", "c", "d", "e"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, got)
	assert.Empty(t, batches(nil, 2))
}

func TestOllama_BatchesAndRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		var req ollamaRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		resp := ollamaResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(len(req.Input[i])), 1})
		}
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "ollama", BaseURL: srv.URL, BatchSize: 2, MaxRetries: 1, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 1}, {2, 1}, {3, 1}}, vecs)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllama_FailureIsCollaboratorUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "ollama", BaseURL: srv.URL, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)
	_, err = p.EmbedOne(context.Background(), "text")
	assert.ErrorIs(t, err, document.ErrCollaboratorUnavailable)
}

func TestOpenAI_ReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[` +
			`{"object":"embedding","index":1,"embedding":[0,1]},` +
			`{"object":"embedding","index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "openai", APIKey: "test", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	vecs, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
}

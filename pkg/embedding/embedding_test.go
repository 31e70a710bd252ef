package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ai-docqa-be/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	out := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, out[0], 1e-6)
	assert.InDelta(t, 0.8, out[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, Normalize(zero))
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"dimension mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestOllamaProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0, 3, 4}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "")
	vec, err := p.Generate(context.Background(), "hello", TaskRetrievalDocument)
	require.NoError(t, err)
	require.Len(t, vec, 3)
	assert.InDelta(t, 0.6, vec[1], 1e-6)
	assert.InDelta(t, 0.8, vec[2], 1e-6)
}

func TestOllamaProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason apperr.Reason
	}{
		{"rate limited", http.StatusTooManyRequests, apperr.ReasonRateLimited},
		{"server error", http.StatusInternalServerError, apperr.ReasonProviderUnavailable},
		{"bad gateway", http.StatusBadGateway, apperr.ReasonProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewOllamaProvider(srv.URL, "m").Generate(context.Background(), "x", TaskRetrievalQuery)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrEmbedding))
			assert.Equal(t, tt.reason, apperr.ReasonOf(err))
		})
	}
}

func TestOllamaProvider_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOllamaProvider(url, "m").Generate(context.Background(), "x", TaskRetrievalQuery)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrProviderUnavailable))
}

func TestOllamaProvider_EmptyEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m").Generate(context.Background(), "x", TaskRetrievalQuery)
	assert.True(t, errors.Is(err, apperr.ErrEmbedding))
}

func TestJinaProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req jinaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "retrieval.query", req.Task)
		assert.Equal(t, []string{"q"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5,0.5]}]}`))
	}))
	defer srv.Close()

	vec, err := NewJinaProvider("key", srv.URL, "").Generate(context.Background(), "q", TaskRetrievalQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
}

type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (c *countingProvider) Generate(_ context.Context, text string, _ TaskType) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text))}, nil
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{}
	p := NewCachedProvider(inner, time.Minute)

	for i := 0; i < 3; i++ {
		vec, err := p.Generate(ctx, "what is it", TaskRetrievalQuery)
		require.NoError(t, err)
		assert.Equal(t, []float32{10}, vec)
	}
	assert.EqualValues(t, 1, inner.calls.Load())
	assert.Equal(t, 1, p.Len())

	// Document embeddings bypass the cache.
	_, _ = p.Generate(ctx, "what is it", TaskRetrievalDocument)
	_, _ = p.Generate(ctx, "what is it", TaskRetrievalDocument)
	assert.EqualValues(t, 3, inner.calls.Load())
}

func TestCachedProvider_DoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{err: apperr.ErrEmbedding.WithReason(apperr.ReasonRateLimited)}
	p := NewCachedProvider(inner, time.Minute)

	_, err := p.Generate(context.Background(), "q", TaskRetrievalQuery)
	require.Error(t, err)
	_, err = p.Generate(context.Background(), "q", TaskRetrievalQuery)
	require.Error(t, err)
	assert.EqualValues(t, 2, inner.calls.Load())
	assert.Equal(t, 0, p.Len())
}

func TestThrottledProvider_CancelledWhileWaiting(t *testing.T) {
	inner := &countingProvider{}
	p := NewThrottledProvider(inner, 0.001)

	_, err := p.Generate(context.Background(), "a", TaskRetrievalDocument)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Generate(ctx, "b", TaskRetrievalDocument)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrTimeout))
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestNew_Factory(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaProvider{}, p)

	p, err = New(ctx, Config{Provider: "ollama", RPS: 5, QueryCache: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &CachedProvider{}, p)

	_, err = New(ctx, Config{Provider: "jina"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Provider: "gemini"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Provider: "word2vec"})
	assert.Error(t, err)
}

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
)

func TestBuildEmbeddingURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://api.example.com", "https://api.example.com/v1/embeddings"},
		{"https://api.example.com/v1", "https://api.example.com/v1/embeddings"},
		{"https://api.example.com/v1/embeddings", "https://api.example.com/v1/embeddings"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, buildEmbeddingURL(tt.in))
		})
	}
}

func TestEmbed_TruncatesInput(t *testing.T) {
	var got EmbeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}],"model":"m"}`))
	}))
	defer server.Close()

	c := NewClient(&config.EmbeddingConfig{BaseURL: server.URL + "/", Model: "m", MaxInputChars: 2048})
	vec, err := c.Embed(context.Background(), strings.Repeat("é", 3000))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	require.Len(t, got.Input, 1)
	assert.Equal(t, 2048, utf8.RuneCountInString(got.Input[0]))
	assert.Equal(t, "m", got.Model)
}

func TestEmbed_EmptyText(t *testing.T) {
	c := NewClient(&config.EmbeddingConfig{BaseURL: "http://unused"})
	_, err := c.Embed(context.Background(), "   ")
	assert.Error(t, err)
}

func TestEmbedTexts_OrderByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[2],"index":1},{"embedding":[1],"index":0}]}`))
	}))
	defer server.Close()

	c := NewClient(&config.EmbeddingConfig{BaseURL: server.URL + "/v1"})
	vectors, err := c.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, vectors)
}

func TestEmbed_RetryThenFail(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(&config.EmbeddingConfig{BaseURL: server.URL})
	c.backoff = time.Millisecond
	_, err := c.Embed(context.Background(), "query")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEmbed_BadRequestNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(&config.EmbeddingConfig{BaseURL: server.URL})
	_, err := c.Embed(context.Background(), "query")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

package llm

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

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
)

func newTestClient(url string) *Client {
	c := NewClient(&config.LLMConfig{BaseURL: url, APIKey: "sk-test", Model: "test-model", MaxTokens: 100}, nil)
	c.backoff = time.Millisecond
	return c
}

func TestInvoke_Success(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"test-model","choices":[{"index":0,"message":{"role":"assistant","content":"SELECT 1"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	out, err := newTestClient(server.URL+"/").Invoke(context.Background(), "write sql", "you are a sql expert", 0)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, 100, got.MaxTokens, "maxTokens <= 0 时使用配置默认值")
	assert.Equal(t, "test-model", got.Model)
}

func TestInvoke_NoSystemMessage(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Invoke(context.Background(), "hi", "", 7)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, 7, got.MaxTokens)
}

func TestInvoke_RetriesOnThrottle(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	out, err := newTestClient(server.URL).Invoke(context.Background(), "hi", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInvoke_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		retries int32
	}{
		{"bad request is not retried", http.StatusBadRequest, `{"error":"bad"}`, 1},
		{"server error retried", http.StatusInternalServerError, `oops`, maxAttempts},
		{"no choices", http.StatusOK, `{"choices":[]}`, 1},
		{"invalid json", http.StatusOK, `not json`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Invoke(context.Background(), "hi", "", 0)
			require.Error(t, err)
			assert.True(t, IsProviderError(err))
			assert.Equal(t, tt.retries, atomic.LoadInt32(&calls))
		})
	}
}

func TestInvoke_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient(url).Invoke(context.Background(), "hi", "", 0)
	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.StatusCode)
}

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces/http/handler"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces/http/middleware"
)

func TestNewServer_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	server := NewServer(&config.ServerConfig{HTTPPort: ":0"}, &handler.Text2SQLHandler{}, handler.NewHealthHandler(nil), nil)

	routes := make(map[string]bool)
	for _, r := range server.router.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/text2sql/simple",
		"POST /api/v1/text2sql/advanced",
		"POST /api/v1/text2sql/chat",
		"DELETE /api/v1/text2sql/chat/:session_id",
		"POST /api/v1/text2sql/agentic",
		"GET /api/v1/text2sql/tools",
		"POST /api/v1/text2sql/execute",
		"GET /api/v1/text2sql/runs",
		"GET /api/v1/text2sql/runs/:id",
		"GET /health",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}
	assert.False(t, routes["GET /mcp/sse"], "mcp route requires an MCP server")

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestHTTPServer_StopBeforeStart(t *testing.T) {
	server := NewServer(&config.ServerConfig{HTTPPort: ":0"}, &handler.Text2SQLHandler{}, handler.NewHealthHandler(nil), nil)
	assert.NoError(t, server.Stop())
}

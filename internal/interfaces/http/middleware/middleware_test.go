package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces/http/response"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) {
		assert.Equal(t, c.GetString(response.RequestIDKey), log.RequestIDFromContext(c.Request.Context()))
		response.Success(c, nil)
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Contains(t, w.Body.String(), id)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
		assert.Contains(t, w.Body.String(), `"request_id":"req-123"`)
	})
}

func TestEnsureUTF8Body(t *testing.T) {
	gin.SetMode(gin.TestMode)

	latin1, err := charmap.ISO8859_1.NewEncoder().String(`{"query":"plants in Curaçao"}`)
	require.NoError(t, err)
	cp1252, err := charmap.Windows1252.NewEncoder().String(`{"query":"plants in Curaçao"}`)
	require.NoError(t, err)

	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{name: "utf-8 untouched", contentType: "application/json", body: `{"query":"plants in Curaçao"}`, want: `{"query":"plants in Curaçao"}`},
		{name: "declared latin-1", contentType: "application/json; charset=ISO-8859-1", body: latin1, want: `{"query":"plants in Curaçao"}`},
		{name: "undeclared windows-1252", contentType: "application/json", body: cp1252, want: `{"query":"plants in Curaçao"}`},
		{name: "unknown charset untouched", contentType: "application/json; charset=x-unknown", body: `{"query":"x"}`, want: `{"query":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			router := gin.New()
			router.Use(EnsureUTF8Body())
			router.POST("/echo", func(c *gin.Context) {
				data, err := io.ReadAll(c.Request.Body)
				require.NoError(t, err)
				got = string(data)
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			router.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeclaredCharset(t *testing.T) {
	assert.Equal(t, "iso-8859-1", declaredCharset("application/json; charset=ISO-8859-1"))
	assert.Equal(t, "", declaredCharset("application/json"))
	assert.Equal(t, "", declaredCharset(""))
}

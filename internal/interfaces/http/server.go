package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces/http/handler"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces/http/middleware"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces/mcp"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	cfg *config.ServerConfig,
	text2sqlHandler *handler.Text2SQLHandler,
	healthHandler *handler.HealthHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	if !log.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := log.NewModuleLogger("http", "server")

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(logger), middleware.EnsureUTF8Body())
	registerRoutes(router, text2sqlHandler, healthHandler)

	// MCP SSE 端点
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	return &HTTPServer{
		router:   router,
		httpPort: cfg.HTTPPort,
		logger:   logger,
	}
}

// registerRoutes 注册路由
func registerRoutes(router *gin.Engine, h *handler.Text2SQLHandler, health *handler.HealthHandler) {
	api := router.Group("/api/v1")
	{
		t2s := api.Group("/text2sql")
		{
			t2s.POST("/simple", h.Simple)
			t2s.POST("/advanced", h.Advanced)
			t2s.POST("/chat", h.Chat)
			t2s.DELETE("/chat/:session_id", h.ClearChat)
			t2s.POST("/agentic", h.Agentic)
			t2s.GET("/tools", h.Tools)
			t2s.POST("/execute", h.Execute)
			t2s.GET("/runs", h.ListRuns)
			t2s.GET("/runs/:id", h.GetRun)
		}
	}

	// 健康检查
	router.GET("/health", health.Health)
}

// Handler 路由（测试使用）
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:              s.httpPort,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

package wire

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/marshnicholas123/nlq-demo/internal/application/tools"
	applog "github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *interfaces.HTTPServer
	MCPServer  *interfaces.MCPServer
	registry   *tools.Registry
	errCh      chan error
	logger     *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	registry *tools.Registry,
) *App {
	return &App{
		HTTPServer: httpServer,
		MCPServer:  mcpServer,
		registry:   registry,
		errCh:      make(chan error, 1),
		logger:     applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
// MCP 通过 HTTP 服务器的 /mcp/sse 端点提供，不单独监听
func (a *App) Start() error {
	a.logger.Info("Starting text2sql application",
		"tools", len(a.registry.List()),
	)

	go func() {
		if err := a.HTTPServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server stopped unexpectedly",
				"error", err,
			)
			a.errCh <- err
		}
	}()

	a.logger.Info("Text2sql application started successfully")
	return nil
}

// Errors HTTP 服务器意外退出时的错误通道
func (a *App) Errors() <-chan error {
	return a.errCh
}

// Stop 停止所有服务；连接类资源由 InitializeAll 返回的 cleanup 释放
func (a *App) Stop() error {
	a.logger.Info("Stopping text2sql application")

	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
		return err
	}

	a.logger.Info("Text2sql application stopped successfully")
	return nil
}

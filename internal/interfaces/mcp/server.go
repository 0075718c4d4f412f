package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marshnicholas123/nlq-demo/internal/application/agent"
	"github.com/marshnicholas123/nlq-demo/internal/application/tools"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// 服务器信息
const (
	serverName    = "nlq-text2sql"
	serverVersion = "0.1.0"
)

// MCPServer MCP 服务器，暴露工具注册表与智能体
type MCPServer struct {
	server       *mcp.Server
	handler      http.Handler
	registry     *tools.Registry
	orchestrator *agent.Orchestrator
	logger       *slog.Logger
}

// NewServer 创建 MCP 服务器
func NewServer(registry *tools.Registry, orchestrator *agent.Orchestrator) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		nil, // 使用默认能力
	)

	s := &MCPServer{
		server:       server,
		registry:     registry,
		orchestrator: orchestrator,
		logger:       log.NewModuleLogger("mcp", "server"),
	}
	s.registerTools()

	// 每个请求返回同一个服务器实例
	s.handler = mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			return server
		},
		nil,
	)
	return s
}

// Server 底层 MCP 服务器
func (s *MCPServer) Server() *mcp.Server {
	return s.server
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}

// description 注册表中的工具描述，未注册时返回空串
func (s *MCPServer) description(name string) string {
	if t, ok := s.registry.Get(name); ok {
		return t.Description
	}
	return ""
}

// registryHandler 把 MCP 调用转发给注册表，工具失败以 IsError 结果返回
func registryHandler[In any](s *MCPServer, name string, params func(In) tools.Params) mcp.ToolHandlerFor[In, tools.Result] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, tools.Result, error) {
		res := s.registry.Execute(ctx, name, params(in))
		if !res.Success {
			s.logger.Warn("MCP tool call failed", "tool", name, "error", res.Error)
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s failed: %s", name, res.Error)}},
			}, res, nil
		}
		return nil, res, nil
	}
}

//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"

	"github.com/marshnicholas123/nlq-demo/internal/application"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/database"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces/http/handler"
)

// InitializeAll 初始化所有服务（HTTP + MCP）
func InitializeAll(cfg *config.Config) (*App, func(), error) {
	wire.Build(
		// 按层组合 ProviderSet
		infrastructure.ProviderSet, // 基础设施层
		ProvideSources,             // 离线索引与语义后端
		application.ProviderSet,    // 应用层
		interfaces.ProviderSet,     // 接口层
		// 接口绑定：健康检查 -> 目标库
		wire.Bind(new(handler.Pinger), new(*database.Executor)),
		NewApp, // 组合所有服务的应用结构
	)
	return nil, nil, nil
}

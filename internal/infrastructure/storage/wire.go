package storage

import "github.com/google/wire"

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,        // 提供审计库连接
	NewRunRepository, // 运行审计仓储
)

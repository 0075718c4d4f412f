package text2sql

import "github.com/google/wire"

// ProviderSet 生成服务 ProviderSet
var ProviderSet = wire.NewSet(
	NewPromptBuilder,
	NewService,
)

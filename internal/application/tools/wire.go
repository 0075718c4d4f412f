package tools

import "github.com/google/wire"

// ProviderSet 工具层 ProviderSet
var ProviderSet = wire.NewSet(
	NewDefaultRegistry,
)

package index

import "github.com/google/wire"

// ProviderSet 索引加载 ProviderSet
var ProviderSet = wire.NewSet(
	NewLoader,
)

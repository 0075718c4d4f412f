package retrieval

import "github.com/google/wire"

// ProviderSet 检索应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewCatalog,
)

package session

import "github.com/google/wire"

// ProviderSet 会话应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewManager,
)

package agent

import "github.com/google/wire"

// ProviderSet 智能体 ProviderSet
var ProviderSet = wire.NewSet(
	NewOrchestrator,
)

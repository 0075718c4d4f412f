package interfaces

import (
	"github.com/google/wire"

	"github.com/marshnicholas123/nlq-demo/internal/interfaces/http"
	"github.com/marshnicholas123/nlq-demo/internal/interfaces/mcp"
)

// ProviderSet Interfaces 层总 ProviderSet
var ProviderSet = wire.NewSet(
	http.ProviderSet,
	mcp.ProviderSet,
)

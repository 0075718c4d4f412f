package application

import (
	"github.com/google/wire"

	"github.com/marshnicholas123/nlq-demo/internal/application/agent"
	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/application/session"
	"github.com/marshnicholas123/nlq-demo/internal/application/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/application/tools"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	retrieval.ProviderSet,
	session.ProviderSet,
	tools.ProviderSet,
	text2sql.ProviderSet,
	agent.ProviderSet,
)

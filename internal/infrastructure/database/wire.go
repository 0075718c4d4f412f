package database

import (
	"github.com/google/wire"

	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
)

// ProviderSet 目标库 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideExecutor,
	wire.Bind(new(text2sql.SQLExecutor), new(*Executor)),
)

package infrastructure

import (
	"github.com/google/wire"

	"github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/database"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/embedding"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/index"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/llm"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/session"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/storage"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/tokenizer"
)

// ProviderSet Infrastructure 层总 ProviderSet
// Qdrant 客户端按需在加载索引时创建，不在此注册
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	tokenizer.ProviderSet,
	llm.ProviderSet,
	embedding.ProviderSet,
	index.ProviderSet,
	database.ProviderSet,
	storage.ProviderSet,
	session.ProviderSet,
	// 接口绑定
	wire.Bind(new(text2sql.Completer), new(*llm.Client)),
	wire.Bind(new(retrieval.Embedder), new(*embedding.Client)),
)

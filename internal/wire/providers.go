package wire

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/index"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/vector"
)

// qdrantSyncTimeout 启动时同步 Qdrant 集合的超时
const qdrantSyncTimeout = 2 * time.Minute

// ProvideSources 加载离线索引，semantic_backend 为 qdrant 时同步向量并挂接 Qdrant 检索
func ProvideSources(loader *index.Loader, cfg *config.RetrievalConfig) (*retrieval.Sources, func(), error) {
	bundle, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load indices: %w", err)
	}

	src := &retrieval.Sources{
		Schema:        bundle.Schema,
		BusinessRules: bundle.BusinessRules,
		SampleData:    bundle.SampleData,
	}
	if cfg.SemanticBackend != config.BackendQdrant {
		return src, func() {}, nil
	}

	client, err := vector.NewClient(&cfg.Qdrant)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = client.Close() }

	ctx, cancel := context.WithTimeout(context.Background(), qdrantSyncTimeout)
	defer cancel()

	src.SchemaSearcher = syncSearcher(ctx, client, cfg.Qdrant.CollectionPrefix, bundle.Schema)
	src.RulesSearcher = syncSearcher(ctx, client, cfg.Qdrant.CollectionPrefix, bundle.BusinessRules)
	return src, cleanup, nil
}

// syncSearcher 同步失败时返回 nil，引擎回退到内存余弦检索
func syncSearcher(ctx context.Context, client *qdrant.Client, prefix string, coll *domain.Collection) domain.VectorSearcher {
	if !coll.HasEmbeddings() {
		return nil
	}
	searcher := vector.NewQdrantSearcher(client, prefix+coll.Name)
	if err := searcher.Sync(ctx, coll); err != nil {
		log.NewModuleLogger("wire", "sources").Warn("Qdrant sync failed, using in-memory vectors",
			"collection", coll.Name,
			"error", err,
		)
		return nil
	}
	return searcher
}

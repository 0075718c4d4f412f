package retrieval

import (
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
)

// Sources 已加载的三个集合及可选的语义后端
type Sources struct {
	Schema         *domain.Collection
	BusinessRules  *domain.Collection
	SampleData     *domain.Collection
	SchemaSearcher domain.VectorSearcher
	RulesSearcher  domain.VectorSearcher
}

// Catalog 各集合上的检索入口
type Catalog struct {
	Schema  *SchemaService
	Rules   *Engine
	Samples *SampleProvider
}

// NewCatalog 创建检索目录，样例集合只做关键词检索
func NewCatalog(src *Sources, embedder domain.Embedder, cfg *config.RetrievalConfig) *Catalog {
	opts := EngineOptions{
		Weights: Weights{Keyword: cfg.KeywordWeight, Semantic: cfg.SemanticWeight},
		Defaults: HybridOptions{
			TopK:      cfg.TopK,
			KeywordK:  cfg.KeywordK,
			SemanticK: cfg.SemanticK,
		},
	}

	return &Catalog{
		Schema:  NewSchemaService(NewEngine(src.Schema, embedder, src.SchemaSearcher, opts)),
		Rules:   NewEngine(src.BusinessRules, embedder, src.RulesSearcher, opts),
		Samples: NewSampleProvider(NewEngine(src.SampleData, nil, nil, opts), cfg.TableHints, cfg.SampleRowsPerTable),
	}
}

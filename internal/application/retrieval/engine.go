package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// 默认检索参数
const (
	DefaultTopK           = 5
	DefaultKeywordK       = 10
	DefaultSemanticK      = 10
	DefaultKeywordWeight  = 0.6
	DefaultSemanticWeight = 0.4
)

// Weights 混合检索权重
type Weights struct {
	Keyword  float64
	Semantic float64
}

// HybridOptions 混合检索深度，零值使用默认
type HybridOptions struct {
	TopK      int
	KeywordK  int
	SemanticK int
}

func (o HybridOptions) withDefaults(d HybridOptions) HybridOptions {
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.KeywordK <= 0 {
		o.KeywordK = d.KeywordK
	}
	if o.SemanticK <= 0 {
		o.SemanticK = d.SemanticK
	}
	return o
}

// HybridResponse 混合检索输出
// 语义分支失败时 Degraded 为 true，Results 只含关键词结果
type HybridResponse struct {
	Results  []domain.Result `json:"results"`
	Degraded bool            `json:"degraded,omitempty"`
	Warning  string          `json:"warning,omitempty"`
}

// EngineOptions 引擎构造参数
type EngineOptions struct {
	Weights  Weights
	Defaults HybridOptions
}

// Engine 单个集合上的检索融合引擎，构建后只读
type Engine struct {
	name     string
	docs     []domain.Document
	bm25     *BM25Index
	byTable  map[string][]int
	all      []int
	searcher domain.VectorSearcher
	embedder domain.Embedder
	weights  Weights
	defaults HybridOptions
	logger   *slog.Logger
}

// NewEngine 基于已加载的集合创建引擎
// searcher 为空且集合带向量时使用内存余弦检索；embedder 为空时语义检索不可用
func NewEngine(coll *domain.Collection, embedder domain.Embedder, searcher domain.VectorSearcher, opts EngineOptions) *Engine {
	tokens := coll.Tokens
	if len(tokens) != len(coll.Documents) {
		tokens = make([][]string, len(coll.Documents))
		for i, d := range coll.Documents {
			tokens[i] = Tokenize(d.Content)
		}
	}

	if searcher == nil && coll.HasEmbeddings() {
		searcher = NewMemorySearcher(coll.Embeddings)
	}

	if opts.Weights == (Weights{}) {
		opts.Weights = Weights{Keyword: DefaultKeywordWeight, Semantic: DefaultSemanticWeight}
	}
	opts.Defaults = opts.Defaults.withDefaults(HybridOptions{
		TopK:      DefaultTopK,
		KeywordK:  DefaultKeywordK,
		SemanticK: DefaultSemanticK,
	})

	e := &Engine{
		name:     coll.Name,
		docs:     coll.Documents,
		bm25:     NewBM25Index(tokens),
		byTable:  make(map[string][]int),
		all:      make([]int, len(coll.Documents)),
		searcher: searcher,
		embedder: embedder,
		weights:  opts.Weights,
		defaults: opts.Defaults,
		logger:   log.NewModuleLogger("retrieval", coll.Name),
	}
	for i, d := range coll.Documents {
		e.all[i] = i
		if d.Table != "" {
			e.byTable[d.Table] = append(e.byTable[d.Table], i)
		}
	}
	return e
}

// Name 集合名
func (e *Engine) Name() string {
	return e.name
}

// Documents 集合文档（只读）
func (e *Engine) Documents() []domain.Document {
	return e.docs
}

// Tables 集合涉及的表名，按字典序
func (e *Engine) Tables() []string {
	tables := make([]string, 0, len(e.byTable))
	for t := range e.byTable {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// SemanticEnabled 是否可做语义检索
func (e *Engine) SemanticEnabled() bool {
	return e.searcher != nil && e.embedder != nil
}

// RetrieveKeyword BM25 关键词检索，只返回得分 > 0 的结果
func (e *Engine) RetrieveKeyword(query string, topK int) []domain.Result {
	scores := e.bm25.Scores(Tokenize(query))
	return e.toResults(rankPositive(scores, e.all, topK), domain.MethodKeyword)
}

// RetrieveKeywordInTable 在指定表的行内做关键词检索，词项统计来自全集合
func (e *Engine) RetrieveKeywordInTable(query, table string, topK int) []domain.Result {
	candidates := e.byTable[table]
	if len(candidates) == 0 {
		return nil
	}
	scores := e.bm25.Scores(Tokenize(query))
	return e.toResults(rankPositive(scores, candidates, topK), domain.MethodKeyword)
}

// RetrieveSemantic 向量余弦检索
func (e *Engine) RetrieveSemantic(ctx context.Context, query string, topK int) ([]domain.Result, error) {
	if !e.SemanticEnabled() {
		return nil, fmt.Errorf("collection %s: %w", e.name, domain.ErrSemanticUnavailable)
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := e.searcher.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	ranked := make([]ScoredDoc, 0, len(hits))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(e.docs) {
			return nil, fmt.Errorf("vector backend returned index %d outside collection of %d", h.Index, len(e.docs))
		}
		ranked = append(ranked, ScoredDoc{Index: h.Index, Score: h.Score})
	}
	return e.toResults(ranked, domain.MethodSemantic), nil
}

// RetrieveHybrid 关键词与语义检索的加权融合
func (e *Engine) RetrieveHybrid(ctx context.Context, query string, opts HybridOptions) HybridResponse {
	opts = opts.withDefaults(e.defaults)

	keyword := e.RetrieveKeyword(query, opts.KeywordK)

	semantic, err := e.RetrieveSemantic(ctx, query, opts.SemanticK)
	if err != nil {
		warning := fmt.Sprintf("semantic retrieval failed on %s, using keyword results only: %v", e.name, err)
		log.FromContext(ctx, e.logger).Warn("Hybrid retrieval degraded to keyword only",
			"collection", e.name,
			"error", err,
		)
		results := keyword
		if len(results) > opts.TopK {
			results = results[:opts.TopK]
		}
		return HybridResponse{Results: results, Degraded: true, Warning: warning}
	}

	return HybridResponse{Results: e.fuse(keyword, semantic, opts.TopK)}
}

// fuse 归一化、按去重键合并并加权
func (e *Engine) fuse(keyword, semantic []domain.Result, topK int) []domain.Result {
	type entry struct {
		result   domain.Result
		keyword  float64
		semantic float64
		hasSem   bool
	}

	var order []string
	merged := make(map[string]*entry)

	kwNorm := normalize(keyword)
	for i, r := range keyword {
		key := domain.DedupKey(r.Source, r.Content)
		if _, ok := merged[key]; ok {
			continue
		}
		merged[key] = &entry{result: r, keyword: kwNorm[i] * e.weights.Keyword}
		order = append(order, key)
	}

	semNorm := normalize(semantic)
	for i, r := range semantic {
		key := domain.DedupKey(r.Source, r.Content)
		if ent, ok := merged[key]; ok {
			if !ent.hasSem {
				ent.semantic = semNorm[i] * e.weights.Semantic
				ent.hasSem = true
			}
			continue
		}
		merged[key] = &entry{result: r, semantic: semNorm[i] * e.weights.Semantic, hasSem: true}
		order = append(order, key)
	}

	out := make([]domain.Result, 0, len(order))
	for _, key := range order {
		ent := merged[key]
		r := ent.result
		r.Metadata = copyMetadata(r.Metadata)
		r.Metadata["keyword_score"] = ent.keyword
		r.Metadata["semantic_score"] = ent.semantic
		r.Score = ent.keyword + ent.semantic
		r.Method = domain.MethodHybrid
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// normalize min-max 归一化；全部相等时保持原值
func normalize(results []domain.Result) []float64 {
	out := make([]float64, len(results))
	if len(results) == 0 {
		return out
	}
	lo, hi := results[0].Score, results[0].Score
	for _, r := range results {
		lo = min(lo, r.Score)
		hi = max(hi, r.Score)
	}
	for i, r := range results {
		if hi > lo {
			out[i] = (r.Score - lo) / (hi - lo)
		} else {
			out[i] = r.Score
		}
	}
	return out
}

func (e *Engine) toResults(ranked []ScoredDoc, method domain.Method) []domain.Result {
	out := make([]domain.Result, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, e.toResult(s.Index, s.Score, method))
	}
	return out
}

func (e *Engine) toResult(i int, score float64, method domain.Method) domain.Result {
	d := e.docs[i]
	md := copyMetadata(d.Metadata)
	if d.Table != "" {
		md["table"] = d.Table
	}
	if d.Section != "" {
		md["section"] = d.Section
	}
	return domain.Result{
		Content:  d.Content,
		Score:    score,
		Source:   d.Source,
		Metadata: md,
		Method:   method,
	}
}

func copyMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md)+4)
	for k, v := range md {
		out[k] = v
	}
	return out
}

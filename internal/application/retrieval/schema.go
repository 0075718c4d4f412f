package retrieval

import (
	"context"
	"strings"
)

// SchemaService 表结构上下文
type SchemaService struct {
	engine *Engine
	full   string
}

// NewSchemaService 创建表结构服务
func NewSchemaService(engine *Engine) *SchemaService {
	parts := make([]string, 0, len(engine.Documents()))
	for _, d := range engine.Documents() {
		parts = append(parts, strings.TrimSpace(d.Content))
	}
	return &SchemaService{engine: engine, full: strings.Join(parts, "\n\n")}
}

// Engine 底层表结构集合引擎
func (s *SchemaService) Engine() *Engine {
	return s.engine
}

// FullSchema 完整表结构文本
func (s *SchemaService) FullSchema() string {
	return s.full
}

// Context 查询相关的表结构上下文
// query 为空或检索无结果时返回完整表结构
func (s *SchemaService) Context(ctx context.Context, query string, topK int) (string, HybridResponse) {
	if strings.TrimSpace(query) == "" {
		return s.full, HybridResponse{}
	}
	resp := s.engine.RetrieveHybrid(ctx, query, HybridOptions{TopK: topK})
	if len(resp.Results) == 0 {
		return s.full, resp
	}
	return FormatContext(resp.Results), resp
}

package retrieval

import (
	"context"
	"errors"
)

// Method 检索方式
type Method string

// 检索方式常量
const (
	MethodKeyword  Method = "keyword"
	MethodSemantic Method = "semantic"
	MethodHybrid   Method = "hybrid"
)

// DedupPrefixLen 去重键截取的内容前缀长度（字符）
const DedupPrefixLen = 100

// ErrSemanticUnavailable 集合未配置向量或向量化器
var ErrSemanticUnavailable = errors.New("semantic retrieval unavailable")

// Document 离线索引中的一条文档，加载后不可变
type Document struct {
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Table    string         `json:"table,omitempty"`
	Section  string         `json:"section,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result 一条检索结果
type Result struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Method   Method         `json:"method"`
}

// Section 返回元数据中的 section 字段
func (r Result) Section() string {
	if s, ok := r.Metadata["section"].(string); ok {
		return s
	}
	return ""
}

// Table 返回元数据中的表名
func (r Result) Table() string {
	if s, ok := r.Metadata["table"].(string); ok {
		return s
	}
	return ""
}

// DedupKey 混合检索合并使用的去重键：source + ":" + 内容前 100 个字符
func DedupKey(source, content string) string {
	runes := []rune(content)
	if len(runes) > DedupPrefixLen {
		runes = runes[:DedupPrefixLen]
	}
	return source + ":" + string(runes)
}

// Embedder 文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ScoredIndex 语义后端返回的文档下标与相似度
type ScoredIndex struct {
	Index int
	Score float64
}

// VectorSearcher 语义检索后端（内存余弦或 Qdrant）
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredIndex, error)
}

package retrieval

import (
	"context"
	"fmt"
	"math"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
)

// cosineEpsilon 防止零范数除零
const cosineEpsilon = 1e-10

// CosineSimilarity dot(a,b) / (‖a‖·‖b‖)
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / ((math.Sqrt(na) + cosineEpsilon) * (math.Sqrt(nb) + cosineEpsilon))
}

// MemorySearcher 内存暴力余弦检索
type MemorySearcher struct {
	vectors   [][]float32
	dimension int
}

// NewMemorySearcher 创建内存检索后端
func NewMemorySearcher(vectors [][]float32) *MemorySearcher {
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	return &MemorySearcher{vectors: vectors, dimension: dim}
}

// Search 返回相似度最高的 topK 个下标
func (m *MemorySearcher) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("query vector dimension %d does not match index dimension %d", len(vector), m.dimension)
	}

	scored := make([]ScoredDoc, len(m.vectors))
	for i, v := range m.vectors {
		scored[i] = ScoredDoc{Index: i, Score: CosineSimilarity(vector, v)}
	}
	sortScored(scored)
	if topK >= 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	out := make([]domain.ScoredIndex, len(scored))
	for i, s := range scored {
		out[i] = domain.ScoredIndex{Index: s.Index, Score: s.Score}
	}
	return out, nil
}

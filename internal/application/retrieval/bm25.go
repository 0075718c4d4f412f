package retrieval

import (
	"math"
	"sort"
)

// BM25 Okapi 参数
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// BM25Index 只读的 BM25 Okapi 倒排统计
type BM25Index struct {
	docFreqs []map[string]int
	docLens  []int
	avgDL    float64
	idf      map[string]float64
}

// NewBM25Index 基于分词后的语料构建索引
func NewBM25Index(corpus [][]string) *BM25Index {
	idx := &BM25Index{
		docFreqs: make([]map[string]int, len(corpus)),
		docLens:  make([]int, len(corpus)),
		idf:      make(map[string]float64),
	}

	nd := make(map[string]int)
	total := 0
	for i, doc := range corpus {
		freqs := make(map[string]int, len(doc))
		for _, tok := range doc {
			freqs[tok]++
		}
		idx.docFreqs[i] = freqs
		idx.docLens[i] = len(doc)
		total += len(doc)
		for tok := range freqs {
			nd[tok]++
		}
	}
	if len(corpus) > 0 {
		idx.avgDL = float64(total) / float64(len(corpus))
	}

	// 负 IDF 用平均 IDF 的 epsilon 倍替代
	n := float64(len(corpus))
	var idfSum float64
	var negatives []string
	for tok, freq := range nd {
		v := math.Log(n-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		idx.idf[tok] = v
		idfSum += v
		if v < 0 {
			negatives = append(negatives, tok)
		}
	}
	if len(idx.idf) > 0 {
		eps := bm25Epsilon * idfSum / float64(len(idx.idf))
		for _, tok := range negatives {
			idx.idf[tok] = eps
		}
	}
	return idx
}

// Len 文档数
func (b *BM25Index) Len() int {
	return len(b.docLens)
}

// Scores 计算查询对所有文档的得分，重复的查询词重复计分
func (b *BM25Index) Scores(query []string) []float64 {
	scores := make([]float64, len(b.docLens))
	if b.avgDL == 0 {
		return scores
	}
	for _, q := range query {
		idf, ok := b.idf[q]
		if !ok {
			continue
		}
		for i, freqs := range b.docFreqs {
			tf := float64(freqs[q])
			if tf == 0 {
				continue
			}
			norm := bm25K1 * (1 - bm25B + bm25B*float64(b.docLens[i])/b.avgDL)
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + norm)
		}
	}
	return scores
}

// rankPositive 在候选下标中返回得分 > 0 的前 topK 个，分数相同按下标升序
func rankPositive(scores []float64, candidates []int, topK int) []ScoredDoc {
	ranked := make([]ScoredDoc, 0, len(candidates))
	for _, i := range candidates {
		if scores[i] > 0 {
			ranked = append(ranked, ScoredDoc{Index: i, Score: scores[i]})
		}
	}
	sortScored(ranked)
	if topK >= 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// ScoredDoc 文档下标与得分
type ScoredDoc struct {
	Index int
	Score float64
}

// sortScored 按得分降序，稳定
func sortScored(docs []ScoredDoc) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score == docs[j].Score {
			return docs[i].Index < docs[j].Index
		}
		return docs[i].Score > docs[j].Score
	})
}

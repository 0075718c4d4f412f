package retrieval

import (
	"context"
	"sort"
	"strings"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
)

// SampleRows 表内关键词检索样例行，无命中时回退到该表前 topK 行（得分 0）
func (e *Engine) SampleRows(query, table string, topK int) []domain.Result {
	if rows := e.RetrieveKeywordInTable(query, table, topK); len(rows) > 0 {
		return rows
	}

	candidates := e.byTable[table]
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]domain.Result, 0, len(candidates))
	for _, i := range candidates {
		out = append(out, e.toResult(i, 0, domain.MethodKeyword))
	}
	return out
}

// SampleRowsMulti 多表样例行，没有任何行的表不出现在结果中
func (e *Engine) SampleRowsMulti(query string, tables []string, topK int) map[string][]domain.Result {
	out := make(map[string][]domain.Result, len(tables))
	for _, t := range tables {
		if rows := e.SampleRows(query, t, topK); len(rows) > 0 {
			out[t] = rows
		}
	}
	return out
}

// SampleProvider 为生成阶段挑选相关表并提供样例行
type SampleProvider struct {
	engine       *Engine
	hints        map[string][]string
	rowsPerTable int
}

// NewSampleProvider 创建样例数据提供者
func NewSampleProvider(engine *Engine, hints map[string][]string, rowsPerTable int) *SampleProvider {
	if rowsPerTable <= 0 {
		rowsPerTable = 3
	}
	return &SampleProvider{engine: engine, hints: hints, rowsPerTable: rowsPerTable}
}

// Engine 底层样例集合引擎
func (p *SampleProvider) Engine() *Engine {
	return p.engine
}

// RowsPerTable 每表默认行数
func (p *SampleProvider) RowsPerTable() int {
	return p.rowsPerTable
}

// RelevantTables 由检索结果中的表名与查询关键词提示推断相关表
// 只返回样例集合中存在的表，按字典序
func (p *SampleProvider) RelevantTables(query string, contexts ...[]domain.Result) []string {
	known := make(map[string]bool)
	for _, t := range p.engine.Tables() {
		known[t] = true
	}

	picked := make(map[string]bool)
	for _, results := range contexts {
		for _, r := range results {
			if t := r.Table(); known[t] {
				picked[t] = true
			}
		}
	}

	tokens := make(map[string]bool)
	for _, tok := range Tokenize(query) {
		tokens[tok] = true
	}
	lower := strings.ToLower(query)
	for table, words := range p.hints {
		if !known[table] {
			continue
		}
		for _, w := range words {
			if tokens[w] || (strings.Contains(w, " ") && strings.Contains(lower, w)) {
				picked[table] = true
				break
			}
		}
	}

	tables := make([]string, 0, len(picked))
	for t := range picked {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Rows 为相关表取样例行
func (p *SampleProvider) Rows(_ context.Context, query string, tables []string) map[string][]domain.Result {
	return p.engine.SampleRowsMulti(query, tables, p.rowsPerTable)
}

// FormatSampleData 渲染样例行
func FormatSampleData(samples map[string][]domain.Result) string {
	if len(samples) == 0 {
		return "No sample data available."
	}
	tables := make([]string, 0, len(samples))
	for t := range samples {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Table: " + t + "\n")
		for _, r := range samples[t] {
			b.WriteString("  " + r.Content + "\n")
		}
	}
	return b.String()
}

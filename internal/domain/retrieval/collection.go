package retrieval

// Collection 一个已加载的检索集合
// Tokens 与 Embeddings 若存在，均按下标与 Documents 对齐
type Collection struct {
	Name       string
	Documents  []Document
	Tokens     [][]string
	Embeddings [][]float32
	Model      string
	Dimension  int
}

// HasEmbeddings 集合是否带向量
func (c *Collection) HasEmbeddings() bool {
	return len(c.Embeddings) > 0
}

// Tables 按首次出现顺序返回集合涉及的表名
func (c *Collection) Tables() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, d := range c.Documents {
		if d.Table == "" || seen[d.Table] {
			continue
		}
		seen[d.Table] = true
		tables = append(tables, d.Table)
	}
	return tables
}

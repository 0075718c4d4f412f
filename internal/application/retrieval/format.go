package retrieval

import (
	"fmt"
	"strings"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
)

// NoContext 空结果时的占位文本
const NoContext = "No relevant context found."

// FormatContext 将检索结果渲染为编号的上下文块
func FormatContext(results []domain.Result) string {
	if len(results) == 0 {
		return NoContext
	}

	parts := make([]string, 0, len(results))
	for i, r := range results {
		section := r.Section()
		if section == "" {
			section = "unknown"
		}
		parts = append(parts, fmt.Sprintf("[Context %d] (Score: %.3f, Method: %s)\nSource: %s - %s\n%s\n",
			i+1, r.Score, r.Method, r.Source, section, r.Content))
	}
	return strings.Join(parts, "\n---\n\n")
}

package text2sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/domain/agent"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/tokenizer"
)

// 各生成方式的系统提示
const (
	SystemSimple = `You are an expert SQL query generator. Generate valid SQL queries based on the provided schema and user question.

Rules:
1. Return ONLY the SQL query, no explanations
2. Use proper JOIN syntax when accessing related tables
3. Use appropriate WHERE clauses for filtering
4. Limit results to 100 rows by default unless specified
5. Always use table aliases for clarity`

	SystemAdvanced = `You are an expert SQL query generator specialized in nuclear power plant databases.

Generate valid SQL queries based on the provided schema, sample data, and business context.

Rules:
1. Return ONLY the SQL query, no explanations
2. Use proper JOIN syntax when accessing related tables
3. Apply business rules from the context (e.g., StatusId = 3 for operational plants)
4. Use appropriate aggregations (SUM, COUNT, AVG) when calculating metrics
5. Always include table aliases for clarity
6. Filter NULL values when appropriate
7. Limit results unless asking for aggregates`

	SystemChat = `You are an expert SQL query generator with conversation memory.

You can handle follow-up questions that reference previous queries. Use the conversation
history to understand context and resolve ambiguous references.

Rules:
1. Return ONLY the SQL query, no explanations
2. Consider previous queries when interpreting follow-ups
3. If user asks "show me more details", expand on the previous query
4. If user says "for China" or "in the US", add that filter to previous context
5. Use proper JOIN syntax and business rules from context
6. Apply StatusId = 3 filter for "operational" or "current" queries`

	SystemAgentic = SystemChat + `
7. If previous attempts failed, fix the reported error instead of repeating the query`
)

// PromptInput 生成提示的各部分，空字段不渲染
type PromptInput struct {
	Schema          string
	SampleData      string
	BusinessContext string
	Conversation    string
	Attempts        []agent.Attempt
	Query           string
}

// PromptBuilder 按 Token 预算组装生成提示
type PromptBuilder struct {
	counter   *tokenizer.Counter
	maxTokens int
}

// NewPromptBuilder 创建提示构建器，counter 为空时不做预算控制
func NewPromptBuilder(counter *tokenizer.Counter, cfg *config.AgentConfig) *PromptBuilder {
	return &PromptBuilder{counter: counter, maxTokens: cfg.MaxContextTokens}
}

// Build 渲染提示
// 超出预算时依次截断样例数据、业务上下文、对话历史、表结构，问题本身不截断
func (b *PromptBuilder) Build(in PromptInput) string {
	if b.counter == nil || b.maxTokens <= 0 {
		return render(in)
	}

	sections := []*string{&in.SampleData, &in.BusinessContext, &in.Conversation, &in.Schema}
	for _, sec := range sections {
		for *sec != "" {
			overflow := b.counter.Count(render(in)) - b.maxTokens
			if overflow <= 0 {
				return render(in)
			}
			keep := b.counter.Count(*sec) - overflow
			if keep <= 0 {
				*sec = ""
				break
			}
			truncated, _ := b.counter.Truncate(*sec, keep)
			if truncated == *sec {
				truncated = ""
			}
			*sec = truncated
		}
	}
	return render(in)
}

func render(in PromptInput) string {
	var b strings.Builder
	if in.Schema != "" {
		b.WriteString("Database Schema:\n" + in.Schema + "\n\n")
	}
	if in.SampleData != "" {
		b.WriteString("Sample Data:\n" + in.SampleData + "\n\n")
	}
	if in.BusinessContext != "" {
		b.WriteString("Business Context and Best Practices:\n" + in.BusinessContext + "\n\n")
	}
	if in.Conversation != "" {
		b.WriteString(in.Conversation + "\n\n")
	}
	if len(in.Attempts) > 0 {
		b.WriteString("Previous Attempts (failed):\n")
		for i, a := range in.Attempts {
			fmt.Fprintf(&b, "%d. SQL: %s\n   Error: %s\n", i+1, a.SQL, a.Error)
		}
		b.WriteString("\n")
	}
	b.WriteString("User Question: " + in.Query + "\n\n")
	b.WriteString("Generate a SQL query to answer this question accurately.")
	return b.String()
}

// FormatBusinessContext 渲染业务规则检索结果
func FormatBusinessContext(results []domain.Result) string {
	if len(results) == 0 {
		return retrieval.NoContext
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		table := r.Table()
		if table == "" {
			table = r.Source
		}
		parts = append(parts, fmt.Sprintf("Context from %s - %s:\n%s", table, r.Section(), r.Content))
	}
	return strings.Join(parts, "\n\n")
}

// Sections 检索结果的 section 列表
func Sections(results []domain.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Section())
	}
	return out
}

var sqlFence = regexp.MustCompile("(?is)```sql\\s*\\n(.*?)\\n?```")

// ExtractSQL 取 ```sql 代码块内容，没有代码块时返回去除首尾空白的原文
func ExtractSQL(response string) string {
	if m := sqlFence.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(response)
}

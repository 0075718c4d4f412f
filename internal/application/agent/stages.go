package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/application/session"
	"github.com/marshnicholas123/nlq-demo/internal/application/text2sql"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/agent"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// refineCost 一次重新生成后到达 Reflect 所需的迭代数
const refineCost = 3

const clarificationSystem = "You decide whether a database question is too ambiguous to answer. Respond with JSON only."

// detectClarification 取表结构与业务规则，再让模型判断问题是否需要澄清
// 模型或解析失败时视为无需澄清
func (o *Orchestrator) detectClarification(ctx context.Context, st *domain.State) domain.Stage {
	o.invoke(ctx, st, domain.ToolGetSchema, map[string]any{"query": st.ResolvedQuery})
	o.invoke(ctx, st, domain.ToolSearchMetadata, map[string]any{"query": st.ResolvedQuery, "top_k": metadataTopK})

	prompt := fmt.Sprintf(`Database Schema:
%s

Business Context:
%s

User Question: %s

Is this question ambiguous given the schema and business context? Only ask for clarification
when the question cannot be answered without guessing (for example an undefined time range
or an unknown entity). Respond as:
{"needs_clarification": true or false, "questions": ["..."]}`,
		st.SchemaContext, text2sql.FormatBusinessContext(st.BusinessRules), st.ResolvedQuery)

	out, err := o.completer.Invoke(ctx, prompt, clarificationSystem, o.cfg.ClarificationTokens)
	if err != nil {
		log.FromContext(ctx, o.logger).Warn("Clarification check failed, continuing", "error", err)
		st.Warn("clarification check skipped: " + err.Error())
		return domain.StagePlan
	}

	c, err := parseClarification(out)
	if err != nil {
		log.FromContext(ctx, o.logger).Warn("Unreadable clarification verdict, continuing", "error", err)
		st.Warn("clarification check skipped: " + err.Error())
		return domain.StagePlan
	}
	st.Clarification = c
	if c.NeedsClarification {
		return domain.StageComplete
	}
	return domain.StagePlan
}

// parseClarification 解析模型返回的 JSON，容忍前后的多余文本
// 没有问题列表的"需要澄清"按无需澄清处理
func parseClarification(out string) (*domain.Clarification, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in %q", out)
	}

	var c domain.Clarification
	if err := json.Unmarshal([]byte(out[start:end+1]), &c); err != nil {
		return nil, fmt.Errorf("failed to parse clarification: %w", err)
	}

	questions := c.Questions[:0]
	for _, q := range c.Questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	c.Questions = questions
	if len(c.Questions) == 0 {
		c.NeedsClarification = false
	}
	return &c, nil
}

// generateSQL 组装上下文调用模型生成 SQL，调用记为 generate_sql
func (o *Orchestrator) generateSQL(ctx context.Context, st *domain.State) domain.Stage {
	tables := o.samples.RelevantTables(st.ResolvedQuery, st.BusinessRules)
	missing := make([]string, 0, len(tables))
	for _, t := range tables {
		if _, ok := st.SampleData[t]; !ok {
			missing = append(missing, t)
		}
	}
	for t, rows := range o.samples.Rows(ctx, st.ResolvedQuery, missing) {
		st.SampleData[t] = rows
	}

	prompt := o.prompts.Build(text2sql.PromptInput{
		Schema:          st.SchemaContext,
		SampleData:      retrieval.FormatSampleData(st.SampleData),
		BusinessContext: text2sql.FormatBusinessContext(st.BusinessRules),
		Conversation:    session.ConversationContext(st.History),
		Attempts:        st.Attempts,
		Query:           st.ResolvedQuery,
	})

	started := time.Now()
	out, err := o.completer.Invoke(ctx, prompt, text2sql.SystemAgentic, o.cfg.GenerationMaxTokens)
	sql := ""
	if err == nil {
		if sql = text2sql.ExtractSQL(out); sql == "" {
			err = text2sql.ErrEmptySQL
		}
	}

	record := domain.ToolCallRecord{
		ToolName:   domain.ToolGenerateSQL,
		Parameters: map[string]any{"query": st.ResolvedQuery, "attempt": len(st.Attempts) + 1},
		Success:    err == nil,
		Iteration:  st.Iteration,
		Duration:   time.Since(started),
		Timestamp:  started,
	}
	if err != nil {
		record.Error = err.Error()
		st.ToolCalls = append(st.ToolCalls, record)
		st.Error = fmt.Sprintf("sql generation failed: %v", err)
		log.FromContext(ctx, o.logger).Error("SQL generation failed", "error", err)
		return domain.StageComplete
	}
	st.ToolCalls = append(st.ToolCalls, record)
	st.SQLQuery = sql
	return domain.StageReflect
}

// refinablePatterns 可通过重新生成修复的执行错误
var refinablePatterns = []string{
	"syntax",
	"unknown column",
	"unknown table",
	"no such column",
	"no such table",
	"does not exist",
	"ambiguous column",
	"undefined column",
	"undefined table",
}

// IsRefinable 执行错误是否值得重新生成
func IsRefinable(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, p := range refinablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// reflectOn 评估执行结果，只有关键错误触发重新生成
func reflectOn(st *domain.State) domain.Stage {
	res := st.ExecutionResult
	if res == nil {
		return domain.StagePlan
	}

	ref := &domain.Reflection{}
	switch {
	case res.Success && (res.RowCount > 0 || len(res.Data) > 0):
		ref.IsAcceptable = true
		ref.Confidence = 0.9
	case res.Success:
		ref.IsAcceptable = true
		ref.Confidence = 0.6
		ref.Issues = []string{"query returned no rows"}
	case IsRefinable(res.Error):
		ref.Confidence = 0.2
		ref.Issues = []string{res.Error}
		ref.ShouldRefine = true
	default:
		ref.Confidence = 0.1
		ref.Issues = []string{res.Error}
	}
	st.Reflection = ref

	if !ref.ShouldRefine {
		return domain.StageComplete
	}
	// 重新生成需要生成、执行、验证三次迭代
	if st.Refinements >= st.MaxIterations || st.Iteration+refineCost > st.MaxIterations {
		st.Warn("refinement needed but iteration budget exhausted")
		return domain.StageComplete
	}
	st.ResetForRefinement()
	return domain.StagePlan
}

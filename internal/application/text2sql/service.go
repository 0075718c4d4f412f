package text2sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/application/session"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	sessiondomain "github.com/marshnicholas123/nlq-demo/internal/domain/session"
	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// 生成方式
const (
	MethodSimple   = "simple"
	MethodAdvanced = "advanced"
	MethodChat     = "chat"
	MethodAgentic  = "agentic"
)

// 摘要参数
const (
	summaryRows      = 20
	summaryMaxTokens = 500
	rulesTopK        = 5
)

// ErrEmptyQuery 查询为空
var ErrEmptyQuery = errors.New("query cannot be empty")

// ErrEmptySQL 模型没有返回 SQL
var ErrEmptySQL = errors.New("model returned an empty SQL query")

// Result 一次生成的结果
type Result struct {
	SQL             string                    `json:"sql"`
	Method          string                    `json:"method"`
	Query           string                    `json:"query"`
	ResolvedQuery   string                    `json:"resolved_query,omitempty"`
	SessionID       string                    `json:"session_id,omitempty"`
	ContextUsed     []string                  `json:"context_used,omitempty"`
	SampleTables    []string                  `json:"sample_tables,omitempty"`
	Warnings        []string                  `json:"warnings,omitempty"`
	ExecutionResult *text2sql.ExecutionResult `json:"execution_result,omitempty"`
	Answer          string                    `json:"answer,omitempty"`
}

// Service simple / advanced / chat 三种生成方式及执行、摘要
type Service struct {
	catalog   *retrieval.Catalog
	completer text2sql.Completer
	executor  text2sql.SQLExecutor
	sessions  *session.Manager
	runs      text2sql.RunRepository
	prompts   *PromptBuilder
	resolver  string
	maxTokens int
	logger    *slog.Logger
}

// NewService 创建生成服务
func NewService(
	catalog *retrieval.Catalog,
	completer text2sql.Completer,
	executor text2sql.SQLExecutor,
	sessions *session.Manager,
	runs text2sql.RunRepository,
	prompts *PromptBuilder,
	chatCfg *config.ChatConfig,
	agentCfg *config.AgentConfig,
) *Service {
	return &Service{
		catalog:   catalog,
		completer: completer,
		executor:  executor,
		sessions:  sessions,
		runs:      runs,
		prompts:   prompts,
		resolver:  chatCfg.Resolver,
		maxTokens: agentCfg.GenerationMaxTokens,
		logger:    log.NewModuleLogger("text2sql", "service"),
	}
}

// GenerateSimple 仅使用完整表结构生成 SQL
func (s *Service) GenerateSimple(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	prompt := s.prompts.Build(PromptInput{Schema: s.catalog.Schema.FullSchema(), Query: query})
	sql, err := s.generate(ctx, prompt, SystemSimple)
	if err != nil {
		return nil, err
	}
	return &Result{SQL: sql, Method: MethodSimple, Query: query}, nil
}

// GenerateAdvanced 使用业务规则、表结构与样例数据生成 SQL
func (s *Service) GenerateAdvanced(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	gc := s.gather(ctx, query)
	prompt := s.prompts.Build(gc.input(query, ""))
	sql, err := s.generate(ctx, prompt, SystemAdvanced)
	if err != nil {
		return nil, err
	}
	return gc.result(sql, MethodAdvanced, query), nil
}

// GenerateChat 带会话历史的生成，成功后追加到会话
// 同一会话的整轮处理持有会话锁
func (s *Service) GenerateChat(ctx context.Context, query, sessionID string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if sessionID == "" {
		return nil, errors.New("session_id cannot be empty")
	}
	ctx = log.WithSessionID(ctx, sessionID)

	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	resolved := s.sessions.Resolve(ctx, s.resolver, query, history)

	gc := s.gather(ctx, resolved)
	prompt := s.prompts.Build(gc.input(query, session.ConversationContext(history)))
	sql, err := s.generate(ctx, prompt, SystemChat)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Append(ctx, sessionID, sessiondomain.ChatTurn{
		UserQuery:     query,
		ResolvedQuery: resolved,
		SQL:           sql,
		Timestamp:     time.Now(),
	}); err != nil {
		return nil, err
	}

	res := gc.result(sql, MethodChat, query)
	res.SessionID = sessionID
	if resolved != query {
		res.ResolvedQuery = resolved
	}
	return res, nil
}

// ClearSession 清空会话历史
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()
	return s.sessions.Clear(ctx, sessionID)
}

// Execute 执行 SQL，失败以结果值返回
func (s *Service) Execute(ctx context.Context, query string) *text2sql.ExecutionResult {
	if strings.TrimSpace(query) == "" {
		return text2sql.Failed(errors.New("sql cannot be empty"))
	}
	return s.executor.Execute(ctx, query)
}

// Summarize 根据执行结果生成自然语言回答，失败时返回空串
func (s *Service) Summarize(ctx context.Context, query, sql string, res *text2sql.ExecutionResult) string {
	if res == nil || !res.Success {
		return ""
	}

	rows := res.Data
	if len(rows) > summaryRows {
		rows = rows[:summaryRows]
	}
	data, err := json.Marshal(rows)
	if err != nil {
		log.FromContext(ctx, s.logger).Warn("Failed to encode rows for summary", "error", err)
		return ""
	}

	prompt := fmt.Sprintf("Question: %s\n\nSQL:\n%s\n\nResult (%d rows, first %d shown):\n%s\n\n"+
		"Answer the question in one or two sentences using only the result.",
		query, sql, res.RowCount, len(rows), string(data))

	answer, err := s.completer.Invoke(ctx, prompt, "You explain database query results concisely.", summaryMaxTokens)
	if err != nil {
		log.FromContext(ctx, s.logger).Warn("Failed to summarize result", "error", err)
		return ""
	}
	return strings.TrimSpace(answer)
}

// ListRuns 最近的智能体运行记录
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*text2sql.Run, error) {
	switch {
	case limit <= 0:
		limit = 50
	case limit > 200:
		limit = 200
	}
	return s.runs.ListRecent(ctx, limit)
}

// GetRun 按 ID 查询运行记录
func (s *Service) GetRun(ctx context.Context, id string) (*text2sql.Run, error) {
	return s.runs.FindByID(ctx, id)
}

// generate 调用模型并提取 SQL
func (s *Service) generate(ctx context.Context, prompt, system string) (string, error) {
	out, err := s.completer.Invoke(ctx, prompt, system, s.maxTokens)
	if err != nil {
		return "", fmt.Errorf("sql generation failed: %w", err)
	}
	sql := ExtractSQL(out)
	if sql == "" {
		return "", ErrEmptySQL
	}
	return sql, nil
}

// gathered advanced / chat 共用的检索上下文
type gathered struct {
	schema   string
	rules    []domain.Result
	tables   []string
	samples  map[string][]domain.Result
	warnings []string
}

// gather 检索业务规则，推断相关表并取样例行
func (s *Service) gather(ctx context.Context, query string) *gathered {
	resp := s.catalog.Rules.RetrieveHybrid(ctx, query, retrieval.HybridOptions{TopK: rulesTopK})
	gc := &gathered{
		schema: s.catalog.Schema.FullSchema(),
		rules:  resp.Results,
	}
	if resp.Degraded {
		gc.warnings = append(gc.warnings, resp.Warning)
	}
	gc.tables = s.catalog.Samples.RelevantTables(query, resp.Results)
	gc.samples = s.catalog.Samples.Rows(ctx, query, gc.tables)
	return gc
}

func (g *gathered) input(query, conversation string) PromptInput {
	return PromptInput{
		Schema:          g.schema,
		SampleData:      retrieval.FormatSampleData(g.samples),
		BusinessContext: FormatBusinessContext(g.rules),
		Conversation:    conversation,
		Query:           query,
	}
}

func (g *gathered) result(sql, method, query string) *Result {
	return &Result{
		SQL:          sql,
		Method:       method,
		Query:        query,
		ContextUsed:  Sections(g.rules),
		SampleTables: g.tables,
		Warnings:     g.warnings,
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/application/session"
	"github.com/marshnicholas123/nlq-demo/internal/application/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/application/tools"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/agent"
	sessiondomain "github.com/marshnicholas123/nlq-demo/internal/domain/session"
	t2s "github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// 运行参数
const (
	// DefaultMaxIterations 未配置时的最大规划次数
	DefaultMaxIterations = 3
	// maxIterationsCap 单次请求允许的最大规划次数
	maxIterationsCap = 20
	// metadataTopK 业务规则检索条数
	metadataTopK = 5
)

// Request 一次智能体运行的输入
type Request struct {
	Query         string
	SessionID     string
	MaxIterations int
}

// Orchestrator 智能体状态机
type Orchestrator struct {
	registry  *tools.Registry
	completer t2s.Completer
	samples   *retrieval.SampleProvider
	sessions  *session.Manager
	runs      t2s.RunRepository
	prompts   *text2sql.PromptBuilder
	cfg       *config.AgentConfig
	logger    *slog.Logger
}

// NewOrchestrator 创建状态机，runs 为空时不记录运行
func NewOrchestrator(
	registry *tools.Registry,
	completer t2s.Completer,
	catalog *retrieval.Catalog,
	sessions *session.Manager,
	runs t2s.RunRepository,
	prompts *text2sql.PromptBuilder,
	cfg *config.AgentConfig,
) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		completer: completer,
		samples:   catalog.Samples,
		sessions:  sessions,
		runs:      runs,
		prompts:   prompts,
		cfg:       cfg,
		logger:    log.NewModuleLogger("agent", "orchestrator"),
	}
}

// Run 执行一次完整运行
// 带 session_id 时整轮持有会话锁，产生 SQL 的轮次追加到会话历史
func (o *Orchestrator) Run(ctx context.Context, req Request) (*domain.Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, text2sql.ErrEmptyQuery
	}

	start := time.Now()
	runID := uuid.NewString()
	ctx = log.WithRunID(ctx, runID)

	var history []sessiondomain.ChatTurn
	resolved := req.Query
	if req.SessionID != "" {
		ctx = log.WithSessionID(ctx, req.SessionID)
		unlock := o.sessions.Lock(req.SessionID)
		defer unlock()

		var err error
		history, err = o.sessions.History(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		resolved = o.sessions.Resolve(ctx, o.cfg.Resolver, req.Query, history)
	}

	st := domain.NewState(runID, req.SessionID, req.Query, o.maxIterations(req.MaxIterations))
	st.ResolvedQuery = resolved
	st.History = history

	logger := log.FromContext(ctx, o.logger)
	logger.Info("Agent run started",
		"query", req.Query,
		"resolved_query", resolved,
		"max_iterations", st.MaxIterations,
	)

	o.loop(ctx, st)
	resp := o.respond(st)

	if req.SessionID != "" && st.SQLQuery != "" {
		if err := o.sessions.Append(ctx, req.SessionID, sessiondomain.ChatTurn{
			UserQuery:     req.Query,
			ResolvedQuery: resolved,
			SQL:           st.SQLQuery,
			Timestamp:     time.Now(),
		}); err != nil {
			logger.Warn("Failed to append session turn", "error", err)
			resp.Warnings = append(resp.Warnings, "session history was not updated")
		}
	}

	o.record(ctx, st, resp, time.Since(start))

	logger.Info("Agent run completed",
		"success", resp.Success,
		"iterations", resp.Iterations,
		"tool_calls", resp.ToolCalls,
		"needs_clarification", resp.NeedsClarification,
		"duration", time.Since(start),
	)
	return resp, nil
}

func (o *Orchestrator) maxIterations(requested int) int {
	n := requested
	if n <= 0 {
		n = o.cfg.MaxIterations
	}
	if n <= 0 {
		n = DefaultMaxIterations
	}
	return min(n, maxIterationsCap)
}

// loop 从初始阶段推进到 Complete
func (o *Orchestrator) loop(ctx context.Context, st *domain.State) {
	stage := domain.StagePlan
	if o.cfg.DetectClarification {
		stage = domain.StageDetectClarification
	}

	for stage != domain.StageComplete {
		if err := ctx.Err(); err != nil {
			st.Error = fmt.Sprintf("run aborted: %v", err)
			break
		}
		st.Trace = append(st.Trace, stage)
		stage = o.step(ctx, stage, st)
	}
	st.Trace = append(st.Trace, domain.StageComplete)
}

// step 状态转移函数
func (o *Orchestrator) step(ctx context.Context, stage domain.Stage, st *domain.State) domain.Stage {
	switch stage {
	case domain.StageDetectClarification:
		return o.detectClarification(ctx, st)
	case domain.StagePlan:
		return plan(st)
	case domain.StageExecuteTools:
		return o.executeTools(ctx, st)
	case domain.StageGenerateSQL:
		return o.generateSQL(ctx, st)
	case domain.StageReflect:
		return reflectOn(st)
	default:
		return domain.StageComplete
	}
}

// plan 按固定优先级选择下一步：表结构 → 业务规则 → 生成 → 执行 → 校验 → 完成
func plan(st *domain.State) domain.Stage {
	st.Iteration++
	if st.Iteration > st.MaxIterations {
		st.ForcedTermination = true
		st.Warn(fmt.Sprintf("max iterations (%d) reached", st.MaxIterations))
		return domain.StageComplete
	}

	switch {
	case !st.SchemaLoaded:
		st.NextTool, st.NextParams = domain.ToolGetSchema, map[string]any{"query": st.ResolvedQuery}
	case !st.RulesLoaded:
		st.NextTool, st.NextParams = domain.ToolSearchMetadata, map[string]any{"query": st.ResolvedQuery, "top_k": metadataTopK}
	case st.SQLQuery == "":
		return domain.StageGenerateSQL
	case st.ExecutionResult == nil:
		st.NextTool, st.NextParams = domain.ToolExecuteSQL, map[string]any{"sql": st.SQLQuery}
	case st.ValidationResult == nil:
		st.NextTool, st.NextParams = domain.ToolValidateResults, map[string]any{"results": st.ExecutionResult}
	default:
		return domain.StageComplete
	}
	return domain.StageExecuteTools
}

// executeTools 调用 plan 选定的工具并写回状态
func (o *Orchestrator) executeTools(ctx context.Context, st *domain.State) domain.Stage {
	name := st.NextTool
	o.invoke(ctx, st, name, st.NextParams)
	st.NextTool, st.NextParams = "", nil

	if name == domain.ToolValidateResults && st.ValidationResult != nil {
		return domain.StageReflect
	}
	return domain.StagePlan
}

// invoke 经注册表调用工具，记录调用日志并更新状态
func (o *Orchestrator) invoke(ctx context.Context, st *domain.State, name string, params map[string]any) tools.Result {
	started := time.Now()
	res := o.registry.Execute(ctx, name, params)
	st.ToolCalls = append(st.ToolCalls, domain.ToolCallRecord{
		ToolName:   name,
		Parameters: loggedParams(params),
		Success:    res.Success,
		Error:      res.Error,
		Iteration:  st.Iteration,
		Duration:   time.Since(started),
		Timestamp:  started,
	})
	apply(st, res)
	return res
}

// loggedParams 调用日志中的参数，执行结果只记录概要
func loggedParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if res, ok := v.(*t2s.ExecutionResult); ok && res != nil {
			out[k] = map[string]any{"success": res.Success, "row_count": res.RowCount}
			continue
		}
		out[k] = v
	}
	return out
}

// apply 将工具结果写入状态
func apply(st *domain.State, res tools.Result) {
	switch res.Tool {
	case domain.ToolGetSchema:
		if out, ok := res.Value.(*tools.SchemaOutput); ok && res.Success {
			st.SchemaContext = out.Context
			st.SchemaLoaded = true
			if out.Degraded {
				st.Warn(out.Warning)
			}
		}
	case domain.ToolSearchMetadata:
		if out, ok := res.Value.(*tools.MetadataOutput); ok && res.Success {
			st.BusinessRules = out.Results
			st.RulesLoaded = true
			if out.Degraded {
				st.Warn(out.Warning)
			}
		}
	case domain.ToolGetSampleData:
		if out, ok := res.Value.(*tools.SampleOutput); ok && res.Success {
			for table, rows := range out.Tables {
				st.SampleData[table] = rows
			}
		}
	case domain.ToolExecuteSQL:
		// 执行失败也写入结果，交给反思阶段判断
		if out, ok := res.Value.(*t2s.ExecutionResult); ok && out != nil {
			st.ExecutionResult = out
		} else if !res.Success {
			st.ExecutionResult = t2s.Failed(errors.New(res.Error))
		}
	case domain.ToolValidateResults:
		if out, ok := res.Value.(t2s.ValidationResult); ok && res.Success {
			st.ValidationResult = &out
		}
	}
}

// respond 终态投影
func (o *Orchestrator) respond(st *domain.State) *domain.Response {
	tables := make([]string, 0, len(st.SampleData))
	for t := range st.SampleData {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	resp := &domain.Response{
		RunID:             st.RunID,
		Method:            text2sql.MethodAgentic,
		Query:             st.UserQuery,
		SessionID:         st.SessionID,
		SQL:               st.SQLQuery,
		Iterations:        min(st.Iteration, st.MaxIterations),
		ForcedTermination: st.ForcedTermination,
		ToolCalls:         len(st.ToolCalls),
		ToolCallLog:       st.ToolCalls,
		ExecutionResult:   st.ExecutionResult,
		ValidationResult:  st.ValidationResult,
		Reflection:        st.Reflection,
		ContextUsed: domain.ContextUsed{
			Schema:        st.SchemaLoaded,
			MetadataRules: len(st.BusinessRules),
			SampleTables:  tables,
		},
		Trace:    st.Trace,
		Warnings: st.Warnings,
		Error:    st.Error,
	}
	if st.ResolvedQuery != st.UserQuery {
		resp.ResolvedQuery = st.ResolvedQuery
	}
	if st.Clarification != nil && st.Clarification.NeedsClarification {
		resp.NeedsClarification = true
		resp.Questions = st.Clarification.Questions
	}
	resp.Success = st.Error == "" &&
		!resp.NeedsClarification &&
		st.SQLQuery != "" &&
		(st.ExecutionResult == nil || st.ExecutionResult.Success) &&
		!(len(st.Attempts) > 0 && st.ExecutionResult == nil)
	return resp
}

// record 写入运行审计日志，失败只记录告警
func (o *Orchestrator) record(ctx context.Context, st *domain.State, resp *domain.Response, elapsed time.Duration) {
	if o.runs == nil {
		return
	}
	run := &t2s.Run{
		ID:            st.RunID,
		SessionID:     st.SessionID,
		Query:         st.UserQuery,
		ResolvedQuery: resp.ResolvedQuery,
		SQL:           st.SQLQuery,
		Success:       resp.Success,
		Iterations:    resp.Iterations,
		ToolCalls:     resp.ToolCalls,
		Error:         st.Error,
		DurationMS:    elapsed.Milliseconds(),
		CreatedAt:     time.Now(),
	}
	if err := o.runs.Save(ctx, run); err != nil {
		log.FromContext(ctx, o.logger).Warn("Failed to record agent run", "error", err)
	}
}

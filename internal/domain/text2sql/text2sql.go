package text2sql

import (
	"context"
	"time"
)

// Completer 大模型补全接口
type Completer interface {
	Invoke(ctx context.Context, prompt, system string, maxTokens int) (string, error)
}

// SQLExecutor 目标库执行器，执行失败以结果值返回，不返回 error
type SQLExecutor interface {
	Execute(ctx context.Context, query string) *ExecutionResult
}

// ExecutionResult SQL 执行结果
type ExecutionResult struct {
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data,omitempty"`
	Columns  []string         `json:"columns,omitempty"`
	RowCount int              `json:"row_count"`
	Error    string           `json:"error,omitempty"`
}

// Failed 构造失败结果
func Failed(err error) *ExecutionResult {
	return &ExecutionResult{Success: false, Error: err.Error()}
}

// ValidationResult 结构性校验结果
type ValidationResult struct {
	QueryExecuted bool `json:"query_executed"`
	HasResults    bool `json:"has_results"`
	ErrorPresent  bool `json:"error_present"`
	OverallValid  bool `json:"overall_valid"`
}

// Validate 对执行结果做结构性校验：执行成功、有行、无错误
func Validate(res *ExecutionResult) ValidationResult {
	if res == nil {
		return ValidationResult{ErrorPresent: true}
	}
	v := ValidationResult{
		QueryExecuted: res.Success,
		HasResults:    res.RowCount > 0 || len(res.Data) > 0,
		ErrorPresent:  res.Error != "",
	}
	v.OverallValid = v.QueryExecuted && !v.ErrorPresent
	return v
}

// Run 一次智能体运行的审计记录
type Run struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id,omitempty"`
	Query         string    `json:"query"`
	ResolvedQuery string    `json:"resolved_query,omitempty"`
	SQL           string    `json:"sql,omitempty"`
	Success       bool      `json:"success"`
	Iterations    int       `json:"iterations"`
	ToolCalls     int       `json:"tool_calls"`
	Error         string    `json:"error,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// RunRepository 运行审计存储
type RunRepository interface {
	Save(ctx context.Context, run *Run) error
	ListRecent(ctx context.Context, limit int) ([]*Run, error)
	FindByID(ctx context.Context, id string) (*Run, error)
}

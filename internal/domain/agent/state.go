package agent

import (
	"time"

	"github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/domain/session"
	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
)

// Stage 状态机阶段
type Stage int

// 阶段常量
const (
	StageDetectClarification Stage = iota
	StagePlan
	StageExecuteTools
	StageGenerateSQL
	StageReflect
	StageComplete
)

// String 阶段名称
func (s Stage) String() string {
	switch s {
	case StageDetectClarification:
		return "detect_clarification"
	case StagePlan:
		return "plan"
	case StageExecuteTools:
		return "execute_tools"
	case StageGenerateSQL:
		return "generate_sql"
	case StageReflect:
		return "reflect"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText 以名称序列化
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// 工具名称
const (
	ToolGetSchema       = "get_schema"
	ToolGetSampleData   = "get_sample_data"
	ToolSearchMetadata  = "search_metadata"
	ToolExecuteSQL      = "execute_sql"
	ToolValidateResults = "validate_results"
	// ToolGenerateSQL 不在注册表中，仅出现在调用日志里
	ToolGenerateSQL = "generate_sql"
)

// ToolCallRecord 一次工具调用记录
type ToolCallRecord struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Iteration  int            `json:"iteration"`
	Duration   time.Duration  `json:"duration_ns"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Reflection 反思结果
type Reflection struct {
	IsAcceptable bool     `json:"is_acceptable"`
	Confidence   float64  `json:"confidence"`
	Issues       []string `json:"issues,omitempty"`
	ShouldRefine bool     `json:"should_refine"`
}

// Clarification 澄清检测结果
type Clarification struct {
	NeedsClarification bool     `json:"needs_clarification"`
	Questions          []string `json:"questions,omitempty"`
}

// Attempt 一次失败的生成尝试，供下一轮生成参考
type Attempt struct {
	SQL   string `json:"sql"`
	Error string `json:"error"`
}

// State 单次运行的可变状态，只由状态机推进
type State struct {
	RunID             string
	SessionID         string
	UserQuery         string
	ResolvedQuery     string
	History           []session.ChatTurn
	SchemaContext     string
	SchemaLoaded      bool
	BusinessRules     []retrieval.Result
	RulesLoaded       bool
	SampleData        map[string][]retrieval.Result
	SQLQuery          string
	ExecutionResult   *text2sql.ExecutionResult
	ValidationResult  *text2sql.ValidationResult
	Reflection        *Reflection
	Clarification     *Clarification
	ToolCalls         []ToolCallRecord
	NextTool          string
	NextParams        map[string]any
	Attempts          []Attempt
	Iteration         int
	MaxIterations     int
	Refinements       int
	Trace             []Stage
	Warnings          []string
	Error             string
	ForcedTermination bool
}

// NewState 创建初始状态
func NewState(runID, sessionID, query string, maxIterations int) *State {
	return &State{
		RunID:         runID,
		SessionID:     sessionID,
		UserQuery:     query,
		ResolvedQuery: query,
		MaxIterations: maxIterations,
		SampleData:    make(map[string][]retrieval.Result),
	}
}

// Warn 记录一条告警
func (s *State) Warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// ToolNames 按调用顺序返回工具名
func (s *State) ToolNames() []string {
	names := make([]string, 0, len(s.ToolCalls))
	for _, c := range s.ToolCalls {
		names = append(names, c.ToolName)
	}
	return names
}

// ResetForRefinement 为重新生成清空 SQL 相关字段，保留失败尝试
func (s *State) ResetForRefinement() {
	if s.SQLQuery != "" {
		errMsg := ""
		if s.ExecutionResult != nil {
			errMsg = s.ExecutionResult.Error
		}
		s.Attempts = append(s.Attempts, Attempt{SQL: s.SQLQuery, Error: errMsg})
	}
	s.SQLQuery = ""
	s.ExecutionResult = nil
	s.ValidationResult = nil
	s.Reflection = nil
	s.Refinements++
}

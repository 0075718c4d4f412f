package agent

import (
	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
)

// ContextUsed 生成使用到的上下文概要
type ContextUsed struct {
	Schema        bool     `json:"schema"`
	MetadataRules int      `json:"metadata_rules"`
	SampleTables  []string `json:"sample_tables"`
}

// Response 运行结束后的对外投影
type Response struct {
	RunID              string                     `json:"run_id"`
	Success            bool                       `json:"success"`
	Method             string                     `json:"method"`
	Query              string                     `json:"query"`
	ResolvedQuery      string                     `json:"resolved_query,omitempty"`
	SessionID          string                     `json:"session_id,omitempty"`
	SQL                string                     `json:"sql,omitempty"`
	Answer             string                     `json:"answer,omitempty"`
	Iterations         int                        `json:"iterations"`
	ForcedTermination  bool                       `json:"forced_termination"`
	ToolCalls          int                        `json:"tool_calls"`
	ToolCallLog        []ToolCallRecord           `json:"tool_call_log"`
	ExecutionResult    *text2sql.ExecutionResult  `json:"execution_result,omitempty"`
	ValidationResult   *text2sql.ValidationResult `json:"validation,omitempty"`
	Reflection         *Reflection                `json:"reflection,omitempty"`
	NeedsClarification bool                       `json:"needs_clarification"`
	Questions          []string                   `json:"clarification_questions,omitempty"`
	ContextUsed        ContextUsed                `json:"context_used"`
	Trace              []Stage                    `json:"trace"`
	Warnings           []string                   `json:"warnings,omitempty"`
	Error              string                     `json:"error,omitempty"`
}

package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marshnicholas123/nlq-demo/internal/application/agent"
	"github.com/marshnicholas123/nlq-demo/internal/application/tools"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/agent"
	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
)

// AgentToolName 智能体工具名
const AgentToolName = "text2sql_agent"

// GetSchemaInput get_schema 输入
type GetSchemaInput struct {
	Query string `json:"query,omitempty" jsonschema:"Natural-language question used to select relevant tables; omit for the full schema"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Number of schema sections to return, defaults to 5"`
}

// GetSampleDataInput get_sample_data 输入
type GetSampleDataInput struct {
	TableName  string   `json:"table_name,omitempty" jsonschema:"Table to sample"`
	TableNames []string `json:"table_names,omitempty" jsonschema:"Several tables to sample"`
	Query      string   `json:"query,omitempty" jsonschema:"Optional question used to rank rows"`
	Limit      int      `json:"limit,omitempty" jsonschema:"Rows per table"`
}

// SearchMetadataInput search_metadata 输入
type SearchMetadataInput struct {
	Query string `json:"query" jsonschema:"Question to search business rules for (required)"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Number of rules to return, defaults to 5"`
}

// ExecuteSQLInput execute_sql 输入
type ExecuteSQLInput struct {
	SQL string `json:"sql" jsonschema:"SQL query to execute (required)"`
}

// ValidateResultsInput validate_results 输入
type ValidateResultsInput struct {
	Results *text2sql.ExecutionResult `json:"results" jsonschema:"Result object returned by execute_sql (required)"`
}

// AgentInput text2sql_agent 输入
type AgentInput struct {
	Query         string `json:"query" jsonschema:"Natural-language question (required)"`
	SessionID     string `json:"session_id,omitempty" jsonschema:"Conversation id for follow-up questions"`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"Planning step budget"`
}

// registerTools 注册注册表中的五个工具以及智能体工具
func (s *MCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        domain.ToolGetSchema,
		Description: s.description(domain.ToolGetSchema),
	}, registryHandler(s, domain.ToolGetSchema, func(in GetSchemaInput) tools.Params {
		return tools.Params{"query": in.Query, "top_k": in.TopK}
	}))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        domain.ToolGetSampleData,
		Description: s.description(domain.ToolGetSampleData),
	}, registryHandler(s, domain.ToolGetSampleData, func(in GetSampleDataInput) tools.Params {
		p := tools.Params{"table_name": in.TableName, "query": in.Query, "table_names": in.TableNames}
		if in.Limit > 0 {
			p["limit"] = in.Limit
		}
		return p
	}))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        domain.ToolSearchMetadata,
		Description: s.description(domain.ToolSearchMetadata),
	}, registryHandler(s, domain.ToolSearchMetadata, func(in SearchMetadataInput) tools.Params {
		return tools.Params{"query": in.Query, "top_k": in.TopK}
	}))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        domain.ToolExecuteSQL,
		Description: s.description(domain.ToolExecuteSQL),
	}, registryHandler(s, domain.ToolExecuteSQL, func(in ExecuteSQLInput) tools.Params {
		return tools.Params{"sql": in.SQL}
	}))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        domain.ToolValidateResults,
		Description: s.description(domain.ToolValidateResults),
	}, registryHandler(s, domain.ToolValidateResults, func(in ValidateResultsInput) tools.Params {
		p := tools.Params{}
		if in.Results != nil {
			p["results"] = in.Results
		}
		return p
	}))

	mcp.AddTool(s.server, &mcp.Tool{
		Name: AgentToolName,
		Description: `Answer a natural-language question about the nuclear power plant database with SQL.
The agent loads schema and business rules, asks for clarification when the question is ambiguous,
generates SQL, executes and validates it, and retries on SQL errors.

Parameters:
- query (string, required): the question
- session_id (string, optional): conversation id so follow-ups like "what about China?" resolve
- max_iterations (int, optional): planning step budget

Returns: sql, execution result, validation, reflection, clarification questions and the tool call log.`,
	}, s.agentTool)
}

// agentTool text2sql_agent 实现
func (s *MCPServer) agentTool(ctx context.Context, _ *mcp.CallToolRequest, in AgentInput) (*mcp.CallToolResult, any, error) {
	if in.Query == "" {
		return nil, nil, fmt.Errorf("query is required")
	}
	resp, err := s.orchestrator.Run(ctx, agent.Request{
		Query:         in.Query,
		SessionID:     in.SessionID,
		MaxIterations: in.MaxIterations,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("agent run failed: %w", err)
	}
	return nil, resp, nil
}

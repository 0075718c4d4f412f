package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/domain/agent"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
)

// defaultTopK 未指定 top_k 时的检索条数
const defaultTopK = 5

// SchemaOutput get_schema 的结果
type SchemaOutput struct {
	Context  string          `json:"context"`
	Results  []domain.Result `json:"results,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`
	Warning  string          `json:"warning,omitempty"`
}

// MetadataOutput search_metadata 的结果
type MetadataOutput struct {
	Results  []domain.Result `json:"results"`
	Degraded bool            `json:"degraded,omitempty"`
	Warning  string          `json:"warning,omitempty"`
}

// SampleOutput get_sample_data 的结果，按表分组
type SampleOutput struct {
	Tables map[string][]domain.Result `json:"tables"`
	Text   string                     `json:"text"`
}

// NewDefaultRegistry 注册五个内置工具
func NewDefaultRegistry(catalog *retrieval.Catalog, executor text2sql.SQLExecutor) (*Registry, error) {
	r := NewRegistry()
	builtin := []*Tool{
		NewTool(agent.ToolGetSchema,
			"Retrieves database schema information including tables, columns, data types, and relationships. "+
				"Params: query (optional, narrows to relevant tables), top_k.",
			getSchema(catalog.Schema)),
		NewTool(agent.ToolGetSampleData,
			"Fetches sample rows from specified tables to understand data format and values. "+
				"Params: table_name or table_names, query (optional), limit.",
			getSampleData(catalog.Samples)),
		NewTool(agent.ToolSearchMetadata,
			"Searches metadata documentation for business rules, query patterns, and best practices. "+
				"Params: query, top_k.",
			searchMetadata(catalog.Rules)),
		NewTool(agent.ToolExecuteSQL,
			"Executes a SQL query against the database and returns results. Params: sql.",
			executeSQL(executor)),
		NewTool(agent.ToolValidateResults,
			"Validates SQL query results: execution succeeded, rows present, no reported error. "+
				"Params: results (an execute_sql result).",
			validateResults),
	}
	for _, t := range builtin {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func getSchema(schema *retrieval.SchemaService) Func {
	return func(ctx context.Context, p Params) (any, error) {
		text, resp := schema.Context(ctx, p.String("query"), p.Int("top_k", defaultTopK))
		if strings.TrimSpace(text) == "" {
			return nil, errors.New("schema is empty")
		}
		return &SchemaOutput{
			Context:  text,
			Results:  resp.Results,
			Degraded: resp.Degraded,
			Warning:  resp.Warning,
		}, nil
	}
}

func getSampleData(samples *retrieval.SampleProvider) Func {
	return func(_ context.Context, p Params) (any, error) {
		tables := p.Strings("table_names")
		if name := p.String("table_name"); name != "" {
			tables = append([]string{name}, tables...)
		}
		if len(tables) == 0 {
			return nil, errors.New("table_name or table_names is required")
		}

		limit := p.Int("limit", samples.RowsPerTable())
		if limit <= 0 {
			return nil, fmt.Errorf("limit must be positive, got %d", limit)
		}

		rows := samples.Engine().SampleRowsMulti(p.String("query"), tables, limit)
		return &SampleOutput{Tables: rows, Text: retrieval.FormatSampleData(rows)}, nil
	}
}

func searchMetadata(rules *retrieval.Engine) Func {
	return func(ctx context.Context, p Params) (any, error) {
		query := p.String("query")
		if strings.TrimSpace(query) == "" {
			return nil, errors.New("query is required")
		}
		resp := rules.RetrieveHybrid(ctx, query, retrieval.HybridOptions{TopK: p.Int("top_k", defaultTopK)})
		return &MetadataOutput{
			Results:  resp.Results,
			Degraded: resp.Degraded,
			Warning:  resp.Warning,
		}, nil
	}
}

func executeSQL(executor text2sql.SQLExecutor) Func {
	return func(ctx context.Context, p Params) (any, error) {
		query := p.String("sql")
		if strings.TrimSpace(query) == "" {
			return nil, errors.New("sql is required")
		}
		res := executor.Execute(ctx, query)
		if !res.Success {
			return res, errors.New(res.Error)
		}
		return res, nil
	}
}

func validateResults(_ context.Context, p Params) (any, error) {
	res, err := executionParam(p)
	if err != nil {
		return nil, err
	}
	return text2sql.Validate(res), nil
}

// executionParam 取 results 参数，JSON 调用方传入的对象经解码得到
func executionParam(p Params) (*text2sql.ExecutionResult, error) {
	switch v := p["results"].(type) {
	case *text2sql.ExecutionResult:
		if v == nil {
			return nil, errors.New("missing parameter results")
		}
		return v, nil
	case text2sql.ExecutionResult:
		return &v, nil
	}
	var res text2sql.ExecutionResult
	if err := p.Decode("results", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval/retrievaltest"
	"github.com/marshnicholas123/nlq-demo/internal/domain/agent"
	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
)

// fakeExecutor 返回预设结果并记录 SQL
type fakeExecutor struct {
	result *text2sql.ExecutionResult
	sql    string
}

func (f *fakeExecutor) Execute(_ context.Context, query string) *text2sql.ExecutionResult {
	f.sql = query
	return f.result
}

func newTestRegistry(t *testing.T, exec *fakeExecutor) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry(retrievaltest.Catalog(), exec)
	require.NoError(t, err)
	return r
}

func TestTool_ExecuteErrorsAsValues(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		fn      Func
		success bool
		errMsg  string
	}{
		{"success", func(context.Context, Params) (any, error) { return 42, nil }, true, ""},
		{"error", func(context.Context, Params) (any, error) { return nil, errors.New("boom") }, false, "boom"},
		{"panic", func(context.Context, Params) (any, error) { panic("kaboom") }, false, "tool t panicked: kaboom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewTool("t", "test", tt.fn).Execute(ctx, nil)
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, "t", res.Tool)
			assert.Equal(t, tt.errMsg, res.Error)
		})
	}
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := newTestRegistry(t, &fakeExecutor{})

	names := make([]string, 0)
	for _, info := range r.List() {
		names = append(names, info.Name)
		assert.NotEmpty(t, info.Description)
	}
	assert.Equal(t, []string{
		agent.ToolExecuteSQL,
		agent.ToolGetSampleData,
		agent.ToolGetSchema,
		agent.ToolSearchMetadata,
		agent.ToolValidateResults,
	}, names)

	err := r.Register(NewTool(agent.ToolGetSchema, "dup", nil))
	assert.Error(t, err)
}

func TestRegistry_UnknownTool(t *testing.T) {
	res := newTestRegistry(t, &fakeExecutor{}).Execute(context.Background(), "drop_tables", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "tool drop_tables not found", res.Error)
}

func TestGetSchema(t *testing.T) {
	r := newTestRegistry(t, &fakeExecutor{})
	ctx := context.Background()

	t.Run("full listing without query", func(t *testing.T) {
		res := r.Execute(ctx, agent.ToolGetSchema, nil)
		require.True(t, res.Success, res.Error)
		out := res.Value.(*SchemaOutput)
		assert.Contains(t, out.Context, "Table countries")
		assert.Contains(t, out.Context, "Table nuclear_power_plants")
	})

	t.Run("query conditioned degrades to keyword", func(t *testing.T) {
		res := r.Execute(ctx, agent.ToolGetSchema, Params{"query": "operational status"})
		require.True(t, res.Success, res.Error)
		out := res.Value.(*SchemaOutput)
		assert.True(t, out.Degraded)
		require.NotEmpty(t, out.Results)
		assert.Contains(t, out.Results[0].Content, "status")
	})

	t.Run("no match falls back to full listing", func(t *testing.T) {
		res := r.Execute(ctx, agent.ToolGetSchema, Params{"query": "zzz"})
		require.True(t, res.Success, res.Error)
		assert.Contains(t, res.Value.(*SchemaOutput).Context, "Table countries")
	})
}

func TestGetSampleData(t *testing.T) {
	r := newTestRegistry(t, &fakeExecutor{})
	ctx := context.Background()

	res := r.Execute(ctx, agent.ToolGetSampleData, Params{"table_name": "countries", "query": "china", "limit": float64(1)})
	require.True(t, res.Success, res.Error)
	out := res.Value.(*SampleOutput)
	require.Len(t, out.Tables["countries"], 1)
	assert.Contains(t, out.Tables["countries"][0].Content, "China")
	assert.Contains(t, out.Text, "Table: countries")

	res = r.Execute(ctx, agent.ToolGetSampleData, Params{"table_names": []any{"countries", "nuclear_power_plants"}})
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Value.(*SampleOutput).Tables, 2)

	res = r.Execute(ctx, agent.ToolGetSampleData, Params{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "table_name")
}

func TestSearchMetadata(t *testing.T) {
	r := newTestRegistry(t, &fakeExecutor{})

	res := r.Execute(context.Background(), agent.ToolSearchMetadata, Params{"query": "operational plants", "top_k": 1})
	require.True(t, res.Success, res.Error)
	out := res.Value.(*MetadataOutput)
	require.Len(t, out.Results, 1)
	assert.Contains(t, out.Results[0].Content, "StatusId = 3")

	res = r.Execute(context.Background(), agent.ToolSearchMetadata, Params{})
	assert.False(t, res.Success)
}

func TestExecuteSQL(t *testing.T) {
	ok := &fakeExecutor{result: &text2sql.ExecutionResult{Success: true, RowCount: 1, Data: []map[string]any{{"n": 1}}}}
	res := newTestRegistry(t, ok).Execute(context.Background(), agent.ToolExecuteSQL, Params{"sql": "SELECT 1 AS n"})
	require.True(t, res.Success)
	assert.Equal(t, "SELECT 1 AS n", ok.sql)
	assert.Equal(t, 1, res.Value.(*text2sql.ExecutionResult).RowCount)

	bad := &fakeExecutor{result: &text2sql.ExecutionResult{Error: "no such column: Foo"}}
	res = newTestRegistry(t, bad).Execute(context.Background(), agent.ToolExecuteSQL, Params{"sql": "SELECT Foo"})
	assert.False(t, res.Success)
	assert.Equal(t, "no such column: Foo", res.Error)
	require.NotNil(t, res.Value, "失败时仍携带执行结果")
	assert.Equal(t, "no such column: Foo", res.Value.(*text2sql.ExecutionResult).Error)
}

func TestValidateResults(t *testing.T) {
	r := newTestRegistry(t, &fakeExecutor{})
	ctx := context.Background()

	tests := []struct {
		name    string
		results any
		want    text2sql.ValidationResult
	}{
		{
			"rows present",
			&text2sql.ExecutionResult{Success: true, RowCount: 2},
			text2sql.ValidationResult{QueryExecuted: true, HasResults: true, OverallValid: true},
		},
		{
			"empty result is still valid",
			&text2sql.ExecutionResult{Success: true},
			text2sql.ValidationResult{QueryExecuted: true, OverallValid: true},
		},
		{
			"error reported",
			text2sql.ExecutionResult{Error: "syntax error"},
			text2sql.ValidationResult{ErrorPresent: true},
		},
		{
			"decoded from json object",
			map[string]any{"success": true, "row_count": float64(3)},
			text2sql.ValidationResult{QueryExecuted: true, HasResults: true, OverallValid: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Execute(ctx, agent.ToolValidateResults, Params{"results": tt.results})
			require.True(t, res.Success, res.Error)
			assert.Equal(t, tt.want, res.Value)
		})
	}

	res := r.Execute(ctx, agent.ToolValidateResults, Params{})
	assert.False(t, res.Success)
}

func TestParams(t *testing.T) {
	p := Params{"n": float64(7), "s": "3", "list": "a, b,,c", "x": 1.5}
	assert.Equal(t, 7, p.Int("n", 0))
	assert.Equal(t, 3, p.Int("s", 0))
	assert.Equal(t, 9, p.Int("missing", 9))
	assert.Equal(t, []string{"a", "b", "c"}, p.Strings("list"))
	assert.Equal(t, "1.5", p.String("x"))
	assert.Equal(t, "", p.String("missing"))
}

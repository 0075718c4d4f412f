package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshnicholas123/nlq-demo/internal/application/agent"
	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval/retrievaltest"
	"github.com/marshnicholas123/nlq-demo/internal/application/session"
	"github.com/marshnicholas123/nlq-demo/internal/application/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/application/tools"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	infrasession "github.com/marshnicholas123/nlq-demo/internal/infrastructure/session"
)

type fixedCompleter struct{ out string }

func (c fixedCompleter) Invoke(context.Context, string, string, int) (string, error) {
	return c.out, nil
}

type okExecutor struct{}

func (okExecutor) Execute(context.Context, string) *domain.ExecutionResult {
	return &domain.ExecutionResult{Success: true, RowCount: 1, Columns: []string{"n"}, Data: []map[string]any{{"n": 1}}}
}

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	catalog := retrievaltest.Catalog()
	registry, err := tools.NewDefaultRegistry(catalog, okExecutor{})
	require.NoError(t, err)

	cfg := &config.AgentConfig{MaxIterations: 5, Resolver: config.ResolverHeuristic, GenerationMaxTokens: 100}
	llm := fixedCompleter{out: "SELECT COUNT(*) AS n FROM nuclear_power_plants"}
	sessions := session.NewManager(infrasession.NewMemoryStore(time.Hour), llm, cfg)
	orch := agent.NewOrchestrator(registry, llm, catalog, sessions, nil, text2sql.NewPromptBuilder(nil, cfg), cfg)

	srv := NewServer(registry, orch)
	require.NotNil(t, srv.GetHandler())

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_, err = srv.Server().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func textOf(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func TestMCPServer_ListTools(t *testing.T) {
	cs := connect(t)

	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"get_schema", "get_sample_data", "search_metadata", "execute_sql", "validate_results", AgentToolName,
	}, names)
}

func TestMCPServer_CallRegistryTool(t *testing.T) {
	cs := connect(t)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_metadata",
		Arguments: map[string]any{"query": "operational plants", "top_k": 1},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, textOf(res), "StatusId = 3")

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "execute_sql",
		Arguments: map[string]any{"sql": ""},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(res), "sql is required")
}

func TestMCPServer_CallAgent(t *testing.T) {
	cs := connect(t)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      AgentToolName,
		Arguments: map[string]any{"query": "How many plants are there?"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := textOf(res)
	assert.Contains(t, text, "SELECT COUNT(*) AS n FROM nuclear_power_plants")
	assert.Contains(t, text, `"success":true`)
}

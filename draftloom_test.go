package draftloom

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftloom/draftloom/internal/llm"
	"github.com/draftloom/draftloom/internal/secrets"
	"github.com/draftloom/draftloom/pkg/schema"
)

func testEngine(t *testing.T, mock *llm.MockBackend, extra ...Option) *Engine {
	t.Helper()
	opts := append([]Option{
		WithStorePath("file:" + filepath.Join(t.TempDir(), "draftloom_test.db")),
		WithBackend(mock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, extra...)
	eng, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEngine_ExecuteFullWorkflow(t *testing.T) {
	mock := llm.NewMockBackend()
	mock.AddResponse("story development analyst",
		`{"logline": "one last job", "genre": "thriller", "themes": ["greed"]}`)
	eng := testEngine(t, mock)
	ctx := context.Background()

	report, err := eng.ExecuteFullWorkflow(ctx, "A heist thriller about one last job", "",
		[]schema.AgentType{schema.AgentStoryIntelligence})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.Success)
	assert.Empty(t, report.Errors)
	assert.Contains(t, string(report.Results[schema.AgentStoryIntelligence]), "one last job")

	// The workflow and its node states are persisted.
	wf, err := eng.Workflow(ctx, report.WorkflowID)
	require.NoError(t, err)
	require.Len(t, wf.Nodes, 1)
	assert.Equal(t, schema.NodeStatusSuccess, wf.Nodes[0].Status)

	// The event log bookends the run.
	events, err := eng.Events(ctx, report.WorkflowID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, schema.EventWorkflowStarted, events[0].Type)
	assert.Equal(t, schema.EventWorkflowCompleted, events[len(events)-1].Type)
}

func TestEngine_ExecuteAgentUnknownType(t *testing.T) {
	eng := testEngine(t, llm.NewMockBackend())

	exec, err := eng.ExecuteAgent(context.Background(), "location-scout",
		schema.NewAgentContext("brief", ""), "")
	require.Error(t, err)
	assert.Nil(t, exec)
}

func TestEngine_WorkflowDiagram(t *testing.T) {
	mock := llm.NewMockBackend()
	mock.AddResponse("story development analyst",
		`{"logline": "one last job", "genre": "thriller", "themes": []}`)
	eng := testEngine(t, mock)
	ctx := context.Background()

	report, err := eng.ExecuteFullWorkflow(ctx, "brief", "",
		[]schema.AgentType{schema.AgentStoryIntelligence})
	require.NoError(t, err)

	mermaid, err := eng.WorkflowDiagram(ctx, report.WorkflowID)
	require.NoError(t, err)
	assert.Contains(t, mermaid, "graph TD")
	assert.Contains(t, mermaid, "story-intelligence")
	assert.Contains(t, mermaid, "success")
}

func TestEngine_VaultRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	eng := testEngine(t, llm.NewMockBackend(), WithVault(secrets.VaultConfig{MasterKey: key}))
	ctx := context.Background()

	require.NoError(t, eng.StoreProviderKey(ctx, "anthropic", []byte("sk-test-123")))
	got, err := eng.ResolveProviderKey(ctx, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, []byte("sk-test-123"), got)
}

func TestEngine_VaultUnconfigured(t *testing.T) {
	eng := testEngine(t, llm.NewMockBackend())

	err := eng.StoreProviderKey(context.Background(), "anthropic", []byte("sk"))
	require.Error(t, err)

	var derr *schema.DraftError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, schema.ErrCodeVault, derr.Code)
}

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftloom/draftloom/internal/agents"
	"github.com/draftloom/draftloom/internal/generation"
	"github.com/draftloom/draftloom/internal/llm"
	"github.com/draftloom/draftloom/internal/validation"
	"github.com/draftloom/draftloom/pkg/schema"
)

func testExecutor(mock *llm.MockBackend, cfg ExecutorConfig) *AgentExecutor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	library := agents.NewLibrary()
	generator := generation.NewGenerator(mock, validation.NewSchemaValidator(), logger)
	return NewAgentExecutor(library, generator, logger, cfg)
}

func fastConfig() ExecutorConfig {
	cfg := DefaultExecutorConfig()
	cfg.MaxRetries = 1
	return cfg
}

func TestExecuteAgent_StructuredTier(t *testing.T) {
	mock := llm.NewMockBackend()
	mock.AddResponse("story development analyst",
		`{"logline": "one last job", "genre": "thriller", "themes": ["greed"]}`)
	e := testExecutor(mock, fastConfig())

	actx := schema.NewAgentContext("A heist thriller", "")
	outcome, err := e.ExecuteAgent(context.Background(), schema.AgentStoryIntelligence, actx, "")
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, TierStructured, outcome.Tier)
	assert.JSONEq(t,
		`{"logline": "one last job", "genre": "thriller", "themes": ["greed"]}`,
		string(outcome.Result))

	si, ok := outcome.Typed.(schema.StoryIntelligenceResult)
	require.True(t, ok)
	assert.Equal(t, "thriller", si.Genre)

	// The result is threaded into the updated context; the original
	// context is untouched.
	assert.NotEmpty(t, outcome.UpdatedContext.Result(schema.AgentStoryIntelligence))
	assert.Empty(t, actx.Result(schema.AgentStoryIntelligence))
}

func TestExecuteAgent_LegacyTierAfterSchemaViolation(t *testing.T) {
	// Off-schema output fails the structured tier; the legacy tier digs
	// it out of free text before the caller sees any error.
	mock := llm.NewMockBackend()
	mock.AddResponse("story development analyst", `{"summary": "a crew reunites for one last job"}`)
	e := testExecutor(mock, fastConfig())

	outcome, err := e.ExecuteAgent(context.Background(), schema.AgentStoryIntelligence,
		schema.NewAgentContext("brief", ""), "")
	require.NoError(t, err)
	assert.Equal(t, TierLegacy, outcome.Tier)

	si, ok := outcome.Typed.(schema.StoryIntelligenceResult)
	require.True(t, ok)
	assert.Equal(t, "a crew reunites for one last job", si.Logline)
}

func TestExecuteAgent_FallbackDisabledPropagatesPrimaryError(t *testing.T) {
	mock := llm.NewMockBackend()
	mock.AddResponse("story development analyst", `{"summary": "off schema"}`)
	cfg := fastConfig()
	cfg.FallbackEnabled = false
	e := testExecutor(mock, cfg)

	outcome, err := e.ExecuteAgent(context.Background(), schema.AgentStoryIntelligence,
		schema.NewAgentContext("brief", ""), "")
	require.Error(t, err)

	var derr *schema.DraftError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, schema.ErrCodeRetryExhausted, derr.Code)

	// Only the structured tier ran.
	assert.Equal(t, 1, mock.Calls())
	// The outcome still carries the fallback default.
	require.NotNil(t, outcome)
	assert.Equal(t, TierFallback, outcome.Tier)
}

func TestExecuteAgent_NeverThrowsForKnownTypes(t *testing.T) {
	// Both tiers fail hard for every call; every known agent type must
	// still produce a well-shaped outcome.
	for _, at := range schema.KnownAgentTypes {
		mock := llm.NewMockBackend()
		mock.ScriptErrors(
			&llm.BackendError{Provider: "mock", StatusCode: 401, Err: errors.New("bad key")},
			&llm.BackendError{Provider: "mock", StatusCode: 401, Err: errors.New("bad key")},
		)
		e := testExecutor(mock, fastConfig())

		actx := schema.NewAgentContext("brief", "")
		outcome, err := e.ExecuteAgent(context.Background(), at, actx, "")
		require.Error(t, err, "agent %s", at)
		require.NotNil(t, outcome, "agent %s", at)

		assert.Equal(t, TierFallback, outcome.Tier)
		assert.NotEmpty(t, outcome.Result, "agent %s fallback must be populated", at)
		assert.Equal(t, at, outcome.Typed.ResultType())
		assert.NotEmpty(t, outcome.UpdatedContext.Result(at),
			"agent %s fallback must be threaded into context", at)
	}
}

func TestExecuteAgent_UnknownTypeFailsFast(t *testing.T) {
	mock := llm.NewMockBackend()
	e := testExecutor(mock, fastConfig())

	outcome, err := e.ExecuteAgent(context.Background(), "casting-director",
		schema.NewAgentContext("brief", ""), "")
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, 0, mock.Calls())

	var derr *schema.DraftError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, schema.ErrCodeUnknownAgentType, derr.Code)
}

func TestExecuteAgent_CustomPromptUsed(t *testing.T) {
	mock := llm.NewMockBackend()
	mock.AddResponse("noir style",
		`{"scenes": [{"heading": "INT. BAR - NIGHT", "content": "Smoke hangs low."}]}`)
	e := testExecutor(mock, fastConfig())

	outcome, err := e.ExecuteAgent(context.Background(), schema.AgentCreativeCoauthor,
		schema.NewAgentContext("brief", ""), "Write one scene, noir style.")
	require.NoError(t, err)
	assert.Equal(t, TierStructured, outcome.Tier)

	prompts := mock.Prompts()
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "noir style")
}

func TestExecuteAgent_AttemptsAccumulateAcrossTiers(t *testing.T) {
	mock := llm.NewMockBackend()
	mock.ScriptErrors(
		&llm.BackendError{Provider: "mock", StatusCode: 401, Err: errors.New("bad key")},
		&llm.BackendError{Provider: "mock", StatusCode: 401, Err: errors.New("bad key")},
	)
	e := testExecutor(mock, fastConfig())

	outcome, err := e.ExecuteAgent(context.Background(), schema.AgentStoryIntelligence,
		schema.NewAgentContext("brief", ""), "")
	require.Error(t, err)
	assert.Len(t, outcome.Attempts, 2, "one attempt per tier")
}

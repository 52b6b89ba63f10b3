package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftloom/draftloom/internal/agents"
	"github.com/draftloom/draftloom/internal/generation"
	"github.com/draftloom/draftloom/internal/llm"
	"github.com/draftloom/draftloom/internal/store"
	"github.com/draftloom/draftloom/internal/streaming"
	"github.com/draftloom/draftloom/internal/validation"
	"github.com/draftloom/draftloom/pkg/schema"
)

// memStore is an in-memory store.Store for coordinator tests.
type memStore struct {
	mu        sync.Mutex
	workflows map[string]*schema.Workflow
	nodeOrder map[string][]string
	nodes     map[string]map[string]*schema.AgentNode
	events    map[string][]*store.Event
	versions  map[string][]*store.DocumentVersion
	secrets   map[string][]byte
	upserts   map[string]int // "wf/node/status" -> count
}

func newMemStore() *memStore {
	return &memStore{
		workflows: make(map[string]*schema.Workflow),
		nodeOrder: make(map[string][]string),
		nodes:     make(map[string]map[string]*schema.AgentNode),
		events:    make(map[string][]*store.Event),
		versions:  make(map[string][]*store.DocumentVersion),
		secrets:   make(map[string][]byte),
		upserts:   make(map[string]int),
	}
}

func (m *memStore) CreateWorkflow(_ context.Context, wf *schema.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wf
	m.workflows[wf.ID] = &cp
	m.nodes[wf.ID] = make(map[string]*schema.AgentNode)
	for i := range wf.Nodes {
		node := wf.Nodes[i]
		m.nodeOrder[wf.ID] = append(m.nodeOrder[wf.ID], node.ID)
		m.nodes[wf.ID][node.ID] = &node
	}
	return nil
}

func (m *memStore) GetWorkflow(_ context.Context, id string) (*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow not found: %s", id)
	}
	out := *wf
	out.Nodes = nil
	for _, nodeID := range m.nodeOrder[id] {
		out.Nodes = append(out.Nodes, *m.nodes[id][nodeID])
	}
	return &out, nil
}

func (m *memStore) UpdateWorkflowProgress(_ context.Context, id string, progress schema.WorkflowProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow not found: %s", id)
	}
	wf.Progress = progress
	return nil
}

func (m *memStore) ListWorkflows(_ context.Context, _ int) ([]*schema.Workflow, error) {
	return nil, nil
}

func (m *memStore) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workflows, id)
	return nil
}

func (m *memStore) UpsertNodeState(_ context.Context, workflowID string, node *schema.AgentNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[workflowID]; !ok {
		m.nodes[workflowID] = make(map[string]*schema.AgentNode)
	}
	if _, ok := m.nodes[workflowID][node.ID]; !ok {
		m.nodeOrder[workflowID] = append(m.nodeOrder[workflowID], node.ID)
	}
	cp := *node
	m.nodes[workflowID][node.ID] = &cp
	m.upserts[workflowID+"/"+node.ID+"/"+string(node.Status)]++
	return nil
}

func (m *memStore) GetNodeState(_ context.Context, workflowID, nodeID string) (*schema.AgentNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[workflowID][nodeID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node not found: %s", nodeID)
	}
	cp := *node
	return &cp, nil
}

func (m *memStore) ListNodeStates(_ context.Context, workflowID string) ([]*schema.AgentNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schema.AgentNode
	for _, id := range m.nodeOrder[workflowID] {
		cp := *m.nodes[workflowID][id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) AppendEvent(_ context.Context, event *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Sequence = int64(len(m.events[event.WorkflowID]) + 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	m.events[event.WorkflowID] = append(m.events[event.WorkflowID], event)
	return nil
}

func (m *memStore) GetEvents(_ context.Context, workflowID string, since int64) ([]*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Event
	for _, e := range m.events[workflowID] {
		if e.Sequence > since {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) CreateVersion(_ context.Context, v *store.DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[v.WorkflowID] = append(m.versions[v.WorkflowID], v)
	return nil
}

func (m *memStore) ListVersions(_ context.Context, workflowID string, _ int) ([]*store.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[workflowID], nil
}

func (m *memStore) StoreSecret(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
	return nil
}

func (m *memStore) GetSecret(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.secrets[key]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "secret not found: %s", key)
	}
	return v, nil
}

func (m *memStore) DeleteSecret(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, key)
	return nil
}

func (m *memStore) ListSecrets(_ context.Context) ([]string, error) { return nil, nil }
func (m *memStore) Migrate(_ context.Context) error                 { return nil }
func (m *memStore) Close() error                                    { return nil }

func (m *memStore) eventTypes(workflowID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events[workflowID] {
		out = append(out, e.Type)
	}
	return out
}

// --- test wiring ---

func testRunner(t *testing.T, mock *llm.MockBackend) (*Runner, *memStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := newMemStore()
	library := agents.NewLibrary()
	generator := generation.NewGenerator(mock, validation.NewSchemaValidator(), logger)
	cfg := DefaultExecutorConfig()
	cfg.MaxRetries = 1
	executor := NewAgentExecutor(library, generator, logger, cfg)
	fsm := NewNodeFSM(st)
	runner := NewRunner(st, executor, fsm, streaming.NewMemoryHub(), logger)
	return runner, st
}

func addValidResponses(mock *llm.MockBackend) {
	mock.AddResponse("story development analyst",
		`{"logline": "one last job", "genre": "thriller", "themes": ["greed"]}`)
	mock.AddResponse("knowledge-graph extractor",
		`{"entities": [{"id": "mara", "name": "Mara", "kind": "character"}], "relationships": []}`)
	mock.AddResponse("trailer-house",
		`{"title": "One Last Job", "voiceover": "This winter...", "shots": [{"description": "vault door"}]}`)
	mock.AddResponse("creative co-writer",
		`{"scenes": [{"heading": "INT. VAULT - NIGHT", "content": "The dial clicks."}]}`)
}

func TestRunWorkflow_ContinueOnError(t *testing.T) {
	// Node 2 has a custom prompt the mock cannot satisfy; nodes 1 and 3
	// succeed and the run still reaches node 3.
	mock := llm.NewMockBackend()
	addValidResponses(mock)
	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf := &schema.Workflow{
		ID: "wf-continue",
		Nodes: []schema.AgentNode{
			{ID: "n1", AgentType: schema.AgentStoryIntelligence, Status: schema.NodeStatusIdle},
			{ID: "n2", AgentType: schema.AgentKnowledgeGraph, Status: schema.NodeStatusIdle,
				CustomPrompt: "UNMATCHED PROMPT with no canned response"},
			{ID: "n3", AgentType: schema.AgentCinematicTeaser, Status: schema.NodeStatusIdle},
		},
		Progress: schema.WorkflowProgress{TotalNodes: 3},
	}
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	report, err := runner.RunWorkflow(ctx, "wf-continue", "A heist thriller", "")
	require.NoError(t, err, "node failures must not abort the run")

	assert.False(t, report.Success)
	assert.Equal(t, []string{"n1", "n3"}, report.Progress.CompletedNodeIDs)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "n2", report.Errors[0].NodeID)

	n1, err := st.GetNodeState(ctx, "wf-continue", "n1")
	require.NoError(t, err)
	assert.Equal(t, schema.NodeStatusSuccess, n1.Status)
	assert.NotEmpty(t, n1.Result)

	n2, err := st.GetNodeState(ctx, "wf-continue", "n2")
	require.NoError(t, err)
	assert.Equal(t, schema.NodeStatusError, n2.Status)
	assert.NotEmpty(t, n2.Error)

	n3, err := st.GetNodeState(ctx, "wf-continue", "n3")
	require.NoError(t, err)
	assert.Equal(t, schema.NodeStatusSuccess, n3.Status)
}

func TestRunWorkflow_HeistContextThreading(t *testing.T) {
	// Once story-intelligence succeeds, knowledge-graph's constructed
	// prompt must include story-intelligence's result.
	mock := llm.NewMockBackend()
	addValidResponses(mock)
	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf, err := DefaultWorkflow("wf-heist", "heist", []schema.AgentType{
		schema.AgentStoryIntelligence, schema.AgentKnowledgeGraph,
	})
	require.NoError(t, err)
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	report, err := runner.RunWorkflow(ctx, "wf-heist", "A heist thriller", "")
	require.NoError(t, err)
	require.True(t, report.Success)

	prompts := mock.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "A heist thriller")
	assert.Contains(t, prompts[1], "one last job",
		"knowledge-graph prompt must carry the story-intelligence result")

	assert.NotEmpty(t, report.Results[schema.AgentStoryIntelligence])
	assert.NotEmpty(t, report.Results[schema.AgentKnowledgeGraph])
}

func TestRunWorkflow_StatusCallbacksAndEvents(t *testing.T) {
	mock := llm.NewMockBackend()
	addValidResponses(mock)
	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf, err := DefaultWorkflow("wf-events", "run", []schema.AgentType{schema.AgentStoryIntelligence})
	require.NoError(t, err)
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	var mu sync.Mutex
	var seen []schema.NodeStatus
	runner.OnStatus(func(ev schema.NodeStatusEvent) {
		mu.Lock()
		seen = append(seen, ev.Status)
		mu.Unlock()
	})

	_, err = runner.RunWorkflow(ctx, "wf-events", "brief", "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []schema.NodeStatus{
		schema.NodeStatusPending,
		schema.NodeStatusRunning,
		schema.NodeStatusSuccess,
	}, seen)

	types := st.eventTypes("wf-events")
	assert.Equal(t, schema.EventWorkflowStarted, types[0])
	assert.Contains(t, types, schema.EventNodeQueued)
	assert.Contains(t, types, schema.EventNodeStarted)
	assert.Contains(t, types, schema.EventNodeSucceeded)
	assert.Equal(t, schema.EventWorkflowCompleted, types[len(types)-1])
}

func TestRunWorkflow_CoordinatorFaults(t *testing.T) {
	mock := llm.NewMockBackend()
	runner, _ := testRunner(t, mock)
	ctx := context.Background()

	_, err := runner.RunWorkflow(ctx, "", "brief", "")
	require.Error(t, err)
	var derr *schema.DraftError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, schema.ErrCodeCoordinatorFault, derr.Code)

	_, err = runner.RunWorkflow(ctx, "no-such-workflow", "brief", "")
	require.Error(t, err)
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, schema.ErrCodeCoordinatorFault, derr.Code)
}

func TestRunNode_SingleReRunLeavesOthersUntouched(t *testing.T) {
	mock := llm.NewMockBackend()
	addValidResponses(mock)
	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf, err := DefaultWorkflow("wf-rerun", "rerun", []schema.AgentType{
		schema.AgentStoryIntelligence, schema.AgentKnowledgeGraph,
	})
	require.NoError(t, err)
	// Pre-seed the second node with a persisted result from a prior run.
	wf.Nodes[1].Status = schema.NodeStatusSuccess
	wf.Nodes[1].Result = []byte(`{"entities": [], "relationships": []}`)
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	node, err := runner.RunNode(ctx, "wf-rerun", wf.Nodes[0].ID, "A heist thriller", "")
	require.NoError(t, err)
	assert.Equal(t, schema.NodeStatusSuccess, node.Status)
	assert.NotEmpty(t, node.Result)

	// Exactly one terminal persist for the re-run node.
	assert.Equal(t, 1, st.upserts["wf-rerun/"+wf.Nodes[0].ID+"/success"])

	// The other node's persisted result is untouched.
	other, err := st.GetNodeState(ctx, "wf-rerun", wf.Nodes[1].ID)
	require.NoError(t, err)
	assert.Equal(t, schema.NodeStatusSuccess, other.Status)
	assert.JSONEq(t, `{"entities": [], "relationships": []}`, string(other.Result))
	assert.Equal(t, 0, st.upserts["wf-rerun/"+wf.Nodes[1].ID+"/success"])

	// Exactly one call: only the requested node ran.
	assert.Equal(t, 1, mock.Calls())
}

func TestRunNode_UsesPersistedResultsAsContext(t *testing.T) {
	mock := llm.NewMockBackend()
	addValidResponses(mock)
	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf, err := DefaultWorkflow("wf-ctx", "ctx", []schema.AgentType{
		schema.AgentStoryIntelligence, schema.AgentKnowledgeGraph,
	})
	require.NoError(t, err)
	wf.Nodes[0].Status = schema.NodeStatusSuccess
	wf.Nodes[0].Result = []byte(`{"logline": "persisted logline", "genre": "noir", "themes": []}`)
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	_, err = runner.RunNode(ctx, "wf-ctx", wf.Nodes[1].ID, "brief", "")
	require.NoError(t, err)

	prompts := mock.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "persisted logline")
}

func TestRunNode_BusyRejection(t *testing.T) {
	mock := llm.NewMockBackend()
	addValidResponses(mock)

	gate := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	mock.SetDelay(func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-gate
		return nil
	})

	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf, err := DefaultWorkflow("wf-busy", "busy", []schema.AgentType{schema.AgentStoryIntelligence})
	require.NoError(t, err)
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	done := make(chan error, 1)
	go func() {
		_, runErr := runner.RunNode(ctx, "wf-busy", wf.Nodes[0].ID, "brief", "")
		done <- runErr
	}()

	<-started
	_, err = runner.RunNode(ctx, "wf-busy", wf.Nodes[0].ID, "brief", "")
	require.Error(t, err)
	var derr *schema.DraftError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, schema.ErrCodeBusy, derr.Code)

	close(gate)
	require.NoError(t, <-done)

	// The first run completed unaffected.
	node, err := st.GetNodeState(ctx, "wf-busy", wf.Nodes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, schema.NodeStatusSuccess, node.Status)
}

func TestRunWorkflow_CoauthorCreatesVersion(t *testing.T) {
	mock := llm.NewMockBackend()
	addValidResponses(mock)
	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf, err := DefaultWorkflow("wf-version", "draft", []schema.AgentType{schema.AgentCreativeCoauthor})
	require.NoError(t, err)
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	report, err := runner.RunWorkflow(ctx, "wf-version", "brief", "")
	require.NoError(t, err)
	require.True(t, report.Success)

	versions, err := st.ListVersions(ctx, "wf-version", 10)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Contains(t, versions[0].Content, "INT. VAULT - NIGHT")
	assert.Contains(t, versions[0].Content, "The dial clicks.")
	assert.Contains(t, st.eventTypes("wf-version"), schema.EventVersionCreated)
}

func TestRunWorkflow_ReRunFromTerminalStates(t *testing.T) {
	mock := llm.NewMockBackend()
	addValidResponses(mock)
	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf, err := DefaultWorkflow("wf-again", "again", []schema.AgentType{schema.AgentStoryIntelligence})
	require.NoError(t, err)
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	first, err := runner.RunWorkflow(ctx, "wf-again", "brief", "")
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := runner.RunWorkflow(ctx, "wf-again", "brief", "")
	require.NoError(t, err)
	assert.True(t, second.Success)
}

func TestRunWorkflow_ReQueuesStaleRunningNode(t *testing.T) {
	// A node persisted as running by an interrupted process must not
	// wedge the workflow; the next run re-queues and re-executes it.
	mock := llm.NewMockBackend()
	addValidResponses(mock)
	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf := &schema.Workflow{
		ID: "wf-stale",
		Nodes: []schema.AgentNode{
			{ID: "n1", AgentType: schema.AgentStoryIntelligence, Status: schema.NodeStatusRunning},
		},
		Progress: schema.WorkflowProgress{TotalNodes: 1},
	}
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	report, err := runner.RunWorkflow(ctx, "wf-stale", "brief", "")
	require.NoError(t, err)
	assert.True(t, report.Success)

	node, err := st.GetNodeState(ctx, "wf-stale", "n1")
	require.NoError(t, err)
	assert.Equal(t, schema.NodeStatusSuccess, node.Status)
}

func TestRunWorkflow_FallbackRecordedInEventLog(t *testing.T) {
	// When a node ends up with the library fallback, the event log says
	// so, alongside the node_failed event.
	mock := llm.NewMockBackend()
	runner, st := testRunner(t, mock)
	ctx := context.Background()

	wf := &schema.Workflow{
		ID: "wf-fb",
		Nodes: []schema.AgentNode{
			{ID: "n1", AgentType: schema.AgentStoryIntelligence, Status: schema.NodeStatusIdle,
				CustomPrompt: "UNMATCHED PROMPT with no canned response"},
		},
		Progress: schema.WorkflowProgress{TotalNodes: 1},
	}
	require.NoError(t, st.CreateWorkflow(ctx, wf))

	report, err := runner.RunWorkflow(ctx, "wf-fb", "brief", "")
	require.NoError(t, err)
	require.False(t, report.Success)

	types := st.eventTypes("wf-fb")
	assert.Contains(t, types, schema.EventNodeFailed)
	assert.Contains(t, types, schema.EventExecutorFallback)

	events, err := st.GetEvents(ctx, "wf-fb", 0)
	require.NoError(t, err)
	for _, e := range events {
		if e.Type == schema.EventExecutorFallback {
			assert.Equal(t, "n1", e.NodeID)
			assert.Contains(t, string(e.Payload), string(schema.AgentStoryIntelligence))
		}
	}
}

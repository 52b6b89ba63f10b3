package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftloom/draftloom/internal/logging"
	"github.com/draftloom/draftloom/internal/store"
	"github.com/draftloom/draftloom/internal/streaming"
	"github.com/draftloom/draftloom/pkg/schema"
)

// StatusCallback receives synchronous per-node status updates during a
// run. Callbacks run inline on the execution path; keep them fast.
type StatusCallback func(event schema.NodeStatusEvent)

// Runner is the workflow run coordinator. It iterates nodes in graph
// order, drives each through the node state machine, applies the
// continue-on-error policy and aggregates progress. Node failures never
// abort a run; only coordinator-level faults do.
type Runner struct {
	store    store.Store
	executor *AgentExecutor
	fsm      *NodeFSM
	hub      streaming.EventHub
	logger   *slog.Logger

	mu        sync.Mutex
	busy      map[string]bool
	callbacks []StatusCallback
}

// NewRunner creates a Runner. The hub may be nil when no live consumer
// exists.
func NewRunner(st store.Store, executor *AgentExecutor, fsm *NodeFSM, hub streaming.EventHub, logger *slog.Logger) *Runner {
	return &Runner{
		store:    st,
		executor: executor,
		fsm:      fsm,
		hub:      hub,
		logger:   logger,
		busy:     make(map[string]bool),
	}
}

// OnStatus registers a synchronous status callback.
func (r *Runner) OnStatus(cb StatusCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// acquire marks the workflow as executing. A second run or single-node
// request while one is in flight is rejected outright, never queued.
func (r *Runner) acquire(workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy[workflowID] {
		return schema.NewErrorf(schema.ErrCodeBusy,
			"workflow %s already has a node executing", workflowID)
	}
	r.busy[workflowID] = true
	return nil
}

func (r *Runner) release(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.busy, workflowID)
}

// RunWorkflow runs every node of the workflow strictly in sequence,
// threading the extended context from node to node. It returns an error
// only for coordinator-level faults (missing workflow, busy, invalid
// graph); individual node failures land in the report instead.
func (r *Runner) RunWorkflow(ctx context.Context, workflowID, storyBrief, manuscript string) (*schema.RunReport, error) {
	if workflowID == "" {
		return nil, schema.NewError(schema.ErrCodeCoordinatorFault, "workflow id is required")
	}
	if err := r.acquire(workflowID); err != nil {
		return nil, err
	}
	defer r.release(workflowID)

	ctx = logging.WithWorkflowID(ctx, workflowID)

	wf, err := r.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCoordinatorFault,
			"load workflow %s: %s", workflowID, err.Error()).WithCause(err)
	}
	graph, err := NewGraph(wf)
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	report := &schema.RunReport{
		WorkflowID: workflowID,
		Results:    make(map[schema.AgentType]json.RawMessage),
		StartedAt:  time.Now().UTC(),
	}
	progress := schema.WorkflowProgress{TotalNodes: graph.Len()}

	r.appendRunEvent(ctx, workflowID, schema.EventWorkflowStarted)
	r.logger.InfoContext(ctx, "workflow run started", slog.Int("nodes", graph.Len()))

	// Queue every node up front so the UI shows the whole run as pending
	// immediately.
	for _, node := range graph.Nodes() {
		if err := r.queueNode(ctx, workflowID, graph, node.ID); err != nil {
			return nil, err
		}
	}

	actx := schema.NewAgentContext(storyBrief, manuscript)
	for _, nodeID := range graph.ExecutionOrder() {
		actx = r.runNodeInOrder(ctx, workflowID, graph, nodeID, actx, &progress)
		if err := r.store.UpdateWorkflowProgress(ctx, workflowID, progress); err != nil {
			r.logger.WarnContext(ctx, "persist progress failed", slog.String("error", err.Error()))
		}
	}

	report.Context = actx
	for at, res := range actx.Results {
		report.Results[at] = res
	}
	report.Progress = progress
	report.Errors = progress.Errors
	report.Success = len(progress.Errors) == 0
	report.FinishedAt = time.Now().UTC()

	r.appendRunEvent(ctx, workflowID, schema.EventWorkflowCompleted)
	r.logger.InfoContext(ctx, "workflow run finished",
		slog.Int("completed", len(progress.CompletedNodeIDs)),
		slog.Int("failed", len(progress.Errors)),
		slog.Bool("success", report.Success),
	)
	return report, nil
}

// queueNode moves a node into pending from whatever state the previous
// run left it in, persisting and notifying.
func (r *Runner) queueNode(ctx context.Context, workflowID string, graph *Graph, nodeID string) error {
	node, err := graph.Node(nodeID)
	if err != nil {
		return err
	}
	if node.Status == schema.NodeStatusPending {
		return nil
	}
	if err := r.fsm.Transition(ctx, workflowID, nodeID, node.Status, schema.NodeStatusPending); err != nil {
		return err
	}
	if err := graph.UpdateNodeStatus(nodeID, schema.NodeStatusPending, nil, ""); err != nil {
		return err
	}
	r.persistNode(ctx, workflowID, graph, nodeID)
	r.notify(ctx, schema.NodeStatusEvent{
		WorkflowID: workflowID,
		NodeID:     nodeID,
		AgentType:  node.AgentType,
		Status:     schema.NodeStatusPending,
	})
	return nil
}

// runNodeInOrder executes one node during a full run and returns the
// context for the next node. Failures mark the node error and thread the
// fallback-shaped context forward; the run always continues.
func (r *Runner) runNodeInOrder(ctx context.Context, workflowID string, graph *Graph, nodeID string, actx *schema.AgentContext, progress *schema.WorkflowProgress) *schema.AgentContext {
	node, err := graph.Node(nodeID)
	if err != nil {
		progress.Errors = append(progress.Errors, schema.NodeError{NodeID: nodeID, Message: err.Error()})
		return actx
	}
	nodeCtx := logging.WithIDs(ctx, workflowID, nodeID, string(node.AgentType))

	if err := r.startNode(nodeCtx, workflowID, graph, nodeID); err != nil {
		progress.Errors = append(progress.Errors, schema.NodeError{
			NodeID: nodeID, AgentType: node.AgentType, Message: err.Error(),
		})
		return actx
	}

	outcome, execErr := r.executor.ExecuteAgent(nodeCtx, node.AgentType, actx, node.CustomPrompt)
	next := actx
	if outcome != nil && outcome.UpdatedContext != nil {
		next = outcome.UpdatedContext
	}

	if execErr != nil {
		r.finishNode(nodeCtx, workflowID, graph, nodeID, schema.NodeStatusError, nil, execErr.Error(), actx)
		r.recordFallback(nodeCtx, workflowID, nodeID, outcome)
		progress.Errors = append(progress.Errors, schema.NodeError{
			NodeID: nodeID, AgentType: node.AgentType, Message: execErr.Error(),
		})
		return next
	}

	r.finishNode(nodeCtx, workflowID, graph, nodeID, schema.NodeStatusSuccess, outcome.Result, "", actx)
	progress.CompletedNodeIDs = append(progress.CompletedNodeIDs, nodeID)
	r.snapshotVersion(nodeCtx, workflowID, outcome)
	return next
}

// startNode transitions pending -> running.
func (r *Runner) startNode(ctx context.Context, workflowID string, graph *Graph, nodeID string) error {
	node, err := graph.Node(nodeID)
	if err != nil {
		return err
	}
	if err := r.fsm.Transition(ctx, workflowID, nodeID, node.Status, schema.NodeStatusRunning); err != nil {
		return err
	}
	if err := graph.UpdateNodeStatus(nodeID, schema.NodeStatusRunning, nil, ""); err != nil {
		return err
	}
	r.persistNode(ctx, workflowID, graph, nodeID)
	r.notify(ctx, schema.NodeStatusEvent{
		WorkflowID: workflowID,
		NodeID:     nodeID,
		AgentType:  node.AgentType,
		Status:     schema.NodeStatusRunning,
	})
	return nil
}

// finishNode applies the terminal transition and persists the node's full
// data exactly once, so a later read reconstructs state without
// re-running the agent.
func (r *Runner) finishNode(ctx context.Context, workflowID string, graph *Graph, nodeID string, status schema.NodeStatus, result json.RawMessage, errMsg string, input *schema.AgentContext) {
	node, err := graph.Node(nodeID)
	if err != nil {
		r.logger.ErrorContext(ctx, "finish unknown node", slog.String("error", err.Error()))
		return
	}
	if err := r.fsm.Transition(ctx, workflowID, nodeID, node.Status, status); err != nil {
		r.logger.ErrorContext(ctx, "terminal transition failed", slog.String("error", err.Error()))
		return
	}
	if err := graph.UpdateNodeStatus(nodeID, status, result, errMsg); err != nil {
		r.logger.ErrorContext(ctx, "update node status failed", slog.String("error", err.Error()))
		return
	}
	if snapshot, merr := json.Marshal(input); merr == nil {
		node.Input = snapshot
	}
	r.persistNode(ctx, workflowID, graph, nodeID)
	r.notify(ctx, schema.NodeStatusEvent{
		WorkflowID: workflowID,
		NodeID:     nodeID,
		AgentType:  node.AgentType,
		Status:     status,
		Error:      errMsg,
	})
}

func (r *Runner) persistNode(ctx context.Context, workflowID string, graph *Graph, nodeID string) {
	node, err := graph.Node(nodeID)
	if err != nil {
		return
	}
	if err := r.store.UpsertNodeState(ctx, workflowID, node); err != nil {
		r.logger.WarnContext(ctx, "persist node state failed",
			slog.String("node_id", nodeID), slog.String("error", err.Error()))
	}
}

// snapshotVersion writes a document version when the creative co-author
// lands scenes. Versions are write-only from the engine's point of view.
func (r *Runner) snapshotVersion(ctx context.Context, workflowID string, outcome *Outcome) {
	if outcome.AgentType != schema.AgentCreativeCoauthor {
		return
	}
	res, ok := outcome.Typed.(schema.CreativeCoauthorResult)
	if !ok || len(res.Scenes) == 0 {
		return
	}

	var b strings.Builder
	for i, scene := range res.Scenes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(scene.Heading)
		b.WriteString("\n\n")
		b.WriteString(scene.Content)
	}
	stats, _ := json.Marshal(map[string]any{"scene_count": len(res.Scenes)})

	version := &store.DocumentVersion{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Content:    b.String(),
		Message:    fmt.Sprintf("co-author draft (%d scenes)", len(res.Scenes)),
		Stats:      stats,
	}
	if err := r.store.CreateVersion(ctx, version); err != nil {
		r.logger.WarnContext(ctx, "create document version failed", slog.String("error", err.Error()))
		return
	}
	r.appendRunEvent(ctx, workflowID, schema.EventVersionCreated)
}

// RunNode executes exactly one node, leaving all other nodes' persisted
// results untouched. The node's context is reconstructed from the
// persisted results of the other nodes.
func (r *Runner) RunNode(ctx context.Context, workflowID, nodeID, storyBrief, manuscript string) (*schema.AgentNode, error) {
	if workflowID == "" {
		return nil, schema.NewError(schema.ErrCodeCoordinatorFault, "workflow id is required")
	}
	if err := r.acquire(workflowID); err != nil {
		return nil, err
	}
	defer r.release(workflowID)

	ctx = logging.WithWorkflowID(ctx, workflowID)

	wf, err := r.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCoordinatorFault,
			"load workflow %s: %s", workflowID, err.Error()).WithCause(err)
	}
	graph, err := NewGraph(wf)
	if err != nil {
		return nil, err
	}
	node, err := graph.Node(nodeID)
	if err != nil {
		return nil, err
	}
	nodeCtx := logging.WithIDs(ctx, workflowID, nodeID, string(node.AgentType))

	// Rebuild the context from what the other nodes already produced.
	actx := schema.NewAgentContext(storyBrief, manuscript)
	for _, other := range graph.Nodes() {
		if other.ID == nodeID || other.Status != schema.NodeStatusSuccess || len(other.Result) == 0 {
			continue
		}
		actx = actx.Extend(other.AgentType, other.Result)
	}

	if err := r.queueNode(nodeCtx, workflowID, graph, nodeID); err != nil {
		return nil, err
	}
	if err := r.startNode(nodeCtx, workflowID, graph, nodeID); err != nil {
		return nil, err
	}

	outcome, execErr := r.executor.ExecuteAgent(nodeCtx, node.AgentType, actx, node.CustomPrompt)
	if execErr != nil {
		r.finishNode(nodeCtx, workflowID, graph, nodeID, schema.NodeStatusError, nil, execErr.Error(), actx)
		r.recordFallback(nodeCtx, workflowID, nodeID, outcome)
	} else {
		r.finishNode(nodeCtx, workflowID, graph, nodeID, schema.NodeStatusSuccess, outcome.Result, "", actx)
		r.snapshotVersion(nodeCtx, workflowID, outcome)
	}

	return graph.Node(nodeID)
}

// recordFallback marks in the event log that the node's threaded context
// carries the library fallback rather than model output, so log readers
// can tell thin defaults from genuine generations.
func (r *Runner) recordFallback(ctx context.Context, workflowID, nodeID string, outcome *Outcome) {
	if outcome == nil || outcome.Tier != TierFallback {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"agent_type": outcome.AgentType,
		"tier":       outcome.Tier,
	})
	if err := r.store.AppendEvent(ctx, &store.Event{
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Type:       schema.EventExecutorFallback,
		Payload:    payload,
	}); err != nil {
		r.logger.WarnContext(ctx, "append fallback event failed",
			slog.String("event_type", schema.EventExecutorFallback), slog.String("error", err.Error()))
	}
}

func (r *Runner) appendRunEvent(ctx context.Context, workflowID, eventType string) {
	if err := r.store.AppendEvent(ctx, &store.Event{WorkflowID: workflowID, Type: eventType}); err != nil {
		r.logger.WarnContext(ctx, "append run event failed",
			slog.String("event_type", eventType), slog.String("error", err.Error()))
	}
}

// notify fans a node status change out to callbacks and the hub.
func (r *Runner) notify(ctx context.Context, event schema.NodeStatusEvent) {
	r.mu.Lock()
	callbacks := make([]StatusCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(event)
	}
	if r.hub != nil {
		_ = r.hub.Publish(ctx, streaming.StreamEvent{
			WorkflowID: event.WorkflowID,
			NodeID:     event.NodeID,
			AgentType:  event.AgentType,
			EventType:  nodeEventType(event.Status),
			Status:     event.Status,
			Payload:    event,
		})
	}
}

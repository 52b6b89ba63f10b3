package engine

import (
	"context"
	"sync"

	"github.com/draftloom/draftloom/internal/store"
	"github.com/draftloom/draftloom/pkg/schema"
)

// TransitionHook is called before or after a node state transition.
type TransitionHook func(from, to schema.NodeStatus) error

// EventAppender is satisfied by store.Store and store.EventLog; the FSM
// emits an event for every observable transition.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

type hookKey struct {
	from, to schema.NodeStatus
}

// NodeFSM manages agent node lifecycle transitions:
//
//	idle -> pending -> running -> {success | error}
//
// Terminal states transition back to pending on re-run.
type NodeFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewNodeFSM creates a NodeFSM that emits events via the given appender.
// A nil appender disables event emission.
func NewNodeFSM(appender EventAppender) *NodeFSM {
	return &NodeFSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition.
func (f *NodeFSM) OnBefore(from, to schema.NodeStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *NodeFSM) OnAfter(from, to schema.NodeStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a node state transition, emitting the
// corresponding event. The caller persists the new state.
func (f *NodeFSM) Transition(ctx context.Context, workflowID, nodeID string, from, to schema.NodeStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid node transition: %s -> %s", from, to).
			WithNode(nodeID).
			WithDetails(map[string]any{"workflow_id": workflowID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if eventType := nodeEventType(to); eventType != "" && f.appender != nil {
		event := &store.Event{
			WorkflowID: workflowID,
			NodeID:     nodeID,
			Type:       eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit node event: %s", err.Error()).
				WithNode(nodeID).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	return nil
}

// ValidNodeTransitions defines the allowed node state transitions.
// success and error loop back to pending so individual nodes can be
// re-run. running also loops back to pending: a node persisted as running
// by an interrupted process would otherwise be stuck forever.
var ValidNodeTransitions = map[schema.NodeStatus][]schema.NodeStatus{
	schema.NodeStatusIdle:    {schema.NodeStatusPending},
	schema.NodeStatusPending: {schema.NodeStatusRunning},
	schema.NodeStatusRunning: {schema.NodeStatusSuccess, schema.NodeStatusError, schema.NodeStatusPending},
	schema.NodeStatusSuccess: {schema.NodeStatusPending},
	schema.NodeStatusError:   {schema.NodeStatusPending},
}

func isValidTransition(from, to schema.NodeStatus) bool {
	for _, a := range ValidNodeTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func nodeEventType(to schema.NodeStatus) string {
	switch to {
	case schema.NodeStatusPending:
		return schema.EventNodeQueued
	case schema.NodeStatusRunning:
		return schema.EventNodeStarted
	case schema.NodeStatusSuccess:
		return schema.EventNodeSucceeded
	case schema.NodeStatusError:
		return schema.EventNodeFailed
	default:
		return ""
	}
}

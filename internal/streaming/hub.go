package streaming

import (
	"context"

	"github.com/draftloom/draftloom/pkg/schema"
)

// StreamEvent is a real-time event emitted during workflow execution.
// Status and AgentType are set for node lifecycle events; other event
// types carry their data in Payload.
type StreamEvent struct {
	WorkflowID string            `json:"workflow_id"`
	NodeID     string            `json:"node_id,omitempty"`
	AgentType  schema.AgentType  `json:"agent_type,omitempty"`
	EventType  string            `json:"event_type"`
	Status     schema.NodeStatus `json:"status,omitempty"`
	Payload    any               `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	WorkflowID string   `json:"workflow_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time workflow events. The UI layer
// subscribes to drive live node badges while a run is in flight.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}

package store

import (
	"encoding/json"
	"time"
)

// Event is an immutable entry in the append-only workflow event log.
type Event struct {
	ID         int64           `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	NodeID     string          `json:"node_id,omitempty"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// DocumentVersion is a persisted snapshot of the story document, written
// after node results land. Orchestration logic only ever writes these;
// reading them back is the editor's concern.
type DocumentVersion struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Content    string          `json:"content"`
	Message    string          `json:"message,omitempty"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

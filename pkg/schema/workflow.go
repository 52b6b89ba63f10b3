package schema

import (
	"encoding/json"
	"time"
)

// Workflow is the persisted graph of agent nodes plus its run progress.
// Node order is significant: execution order equals construction order
// (see Graph.ExecutionOrder).
type Workflow struct {
	ID        string           `json:"id"`
	Name      string           `json:"name,omitempty"`
	Nodes     []AgentNode      `json:"nodes"`
	Edges     []Edge           `json:"edges,omitempty"`
	Progress  WorkflowProgress `json:"progress"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// AgentNode is one agent instance within a workflow. Status, result and
// error are mutated only through Graph.UpdateNodeStatus.
type AgentNode struct {
	ID           string          `json:"id"`
	AgentType    AgentType       `json:"agent_type"`
	Status       NodeStatus      `json:"status"`
	Input        json.RawMessage `json:"input,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CustomPrompt string          `json:"custom_prompt,omitempty"`
}

// Edge is a semantic data-flow link between two nodes. Labels are
// presentation only; scheduling does not consume them.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// WorkflowProgress aggregates the run outcome, recomputed after each node.
type WorkflowProgress struct {
	CompletedNodeIDs []string    `json:"completed_node_ids"`
	TotalNodes       int         `json:"total_nodes"`
	Errors           []NodeError `json:"errors,omitempty"`
}

// NodeError records a single node failure inside WorkflowProgress.
type NodeError struct {
	NodeID    string    `json:"node_id"`
	AgentType AgentType `json:"agent_type"`
	Message   string    `json:"message"`
}

// GenerationAttempt is the ephemeral record of one model call attempt.
type GenerationAttempt struct {
	Attempt   int            `json:"attempt"`
	Timestamp time.Time      `json:"timestamp"`
	ElapsedMs int64          `json:"elapsed_ms"`
	Outcome   AttemptOutcome `json:"outcome"`
	Error     string         `json:"error,omitempty"`
}

// RunReport is the outcome of a full workflow run.
type RunReport struct {
	WorkflowID string                        `json:"workflow_id"`
	Results    map[AgentType]json.RawMessage `json:"results"`
	Context    *AgentContext                 `json:"context,omitempty"`
	Success    bool                          `json:"success"`
	Errors     []NodeError                   `json:"errors,omitempty"`
	Progress   WorkflowProgress              `json:"progress"`
	StartedAt  time.Time                     `json:"started_at"`
	FinishedAt time.Time                     `json:"finished_at"`
}

// NodeStatusEvent is delivered to status callbacks and hub subscribers on
// every node transition.
type NodeStatusEvent struct {
	WorkflowID string     `json:"workflow_id"`
	NodeID     string     `json:"node_id"`
	AgentType  AgentType  `json:"agent_type"`
	Status     NodeStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
}

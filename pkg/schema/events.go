package schema

// Event type constants for the append-only workflow event log.
const (
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowCompleted = "workflow_completed"

	EventNodeQueued    = "node_queued"
	EventNodeStarted   = "node_started"
	EventNodeSucceeded = "node_succeeded"
	EventNodeFailed    = "node_failed"

	EventExecutorFallback = "executor_fallback"
	EventVersionCreated   = "version_created"
)

// NodeStatus represents the lifecycle state of an agent node.
type NodeStatus string

const (
	NodeStatusIdle    NodeStatus = "idle"
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)

// AttemptOutcome classifies the result of a single generation attempt.
type AttemptOutcome string

const (
	OutcomeSuccess            AttemptOutcome = "success"
	OutcomeTimeout            AttemptOutcome = "timeout"
	OutcomeRateLimited        AttemptOutcome = "rate_limited"
	OutcomeInvalidCredentials AttemptOutcome = "invalid_credentials"
	OutcomeSchemaInvalid      AttemptOutcome = "schema_invalid"
	OutcomeOther              AttemptOutcome = "other"
)

package store

import (
	"context"

	"github.com/draftloom/draftloom/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *schema.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
	UpdateWorkflowProgress(ctx context.Context, id string, progress schema.WorkflowProgress) error
	ListWorkflows(ctx context.Context, limit int) ([]*schema.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Node state: the durable record written after each terminal
	// transition, keyed by workflow id + node id.
	UpsertNodeState(ctx context.Context, workflowID string, node *schema.AgentNode) error
	GetNodeState(ctx context.Context, workflowID, nodeID string) (*schema.AgentNode, error)
	ListNodeStates(ctx context.Context, workflowID string) ([]*schema.AgentNode, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error)

	// Document versions (the document-store collaborator surface)
	CreateVersion(ctx context.Context, v *DocumentVersion) error
	ListVersions(ctx context.Context, workflowID string, limit int) ([]*DocumentVersion, error)

	// Secrets (encrypted blobs; encryption happens in internal/secrets)
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}

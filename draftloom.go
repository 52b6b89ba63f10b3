// Package draftloom is a multi-agent content-generation orchestration
// core for AI-assisted screenwriting. Seven specialized agents run over a
// shared, evolving story document: each workflow is a graph of agent
// nodes driven through a state machine, with every model call wrapped in
// retry, timeout, schema validation and a two-tier fallback.
package draftloom

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/draftloom/draftloom/internal/agents"
	"github.com/draftloom/draftloom/internal/diagram"
	"github.com/draftloom/draftloom/internal/engine"
	"github.com/draftloom/draftloom/internal/generation"
	"github.com/draftloom/draftloom/internal/llm"
	"github.com/draftloom/draftloom/internal/llm/anthropic"
	"github.com/draftloom/draftloom/internal/logging"
	"github.com/draftloom/draftloom/internal/secrets"
	"github.com/draftloom/draftloom/internal/store"
	"github.com/draftloom/draftloom/internal/streaming"
	"github.com/draftloom/draftloom/internal/validation"
	"github.com/draftloom/draftloom/pkg/schema"
)

// Aliases so callers outside the module can work with engine output
// without reaching into internal packages.
type (
	// Event is an entry in the append-only workflow event log.
	Event = store.Event
	// DocumentVersion is a persisted snapshot of the story document.
	DocumentVersion = store.DocumentVersion
	// StreamEvent is a live event delivered to hub subscribers.
	StreamEvent = streaming.StreamEvent
	// StreamFilter selects which live events a subscriber receives.
	StreamFilter = streaming.EventFilter
)

// AgentExecution is the outcome of executing one agent over a context.
// Result is always populated: a genuine payload from one of the executor
// tiers, or the agent's fallback default when generation failed entirely.
type AgentExecution struct {
	AgentType      schema.AgentType              `json:"agent_type"`
	Result         json.RawMessage               `json:"result"`
	Typed          schema.AgentResult            `json:"-"`
	UpdatedContext *schema.AgentContext          `json:"updated_context"`
	Tier           string                        `json:"tier"`
	Attempts       []schema.GenerationAttempt    `json:"attempts,omitempty"`
}

type config struct {
	storePath   string
	st          store.Store
	backend     llm.Backend
	logger      *slog.Logger
	vaultCfg    *secrets.VaultConfig
	execCfg     engine.ExecutorConfig
	skipMigrate bool
}

// Option configures the Engine.
type Option func(*config)

// WithStorePath sets the libSQL database path (a file: URI).
func WithStorePath(path string) Option {
	return func(c *config) { c.storePath = path }
}

// WithStore injects a pre-built store, e.g. for tests.
func WithStore(s store.Store) Option {
	return func(c *config) { c.st = s; c.skipMigrate = true }
}

// WithBackend sets the generation backend. Defaults to Anthropic with
// credentials from the environment.
func WithBackend(b llm.Backend) Option {
	return func(c *config) { c.backend = b }
}

// WithLogger injects the logger. Defaults to JSON on stderr wrapped with
// correlation ID injection.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithVault enables the encrypted credential vault.
func WithVault(cfg secrets.VaultConfig) Option {
	return func(c *config) { c.vaultCfg = &cfg }
}

// WithExecutorConfig overrides retry/timeout/fallback tuning.
func WithExecutorConfig(cfg engine.ExecutorConfig) Option {
	return func(c *config) { c.execCfg = cfg }
}

// Engine wires the orchestration core: store, task library, generator,
// tiered executor, run coordinator and streaming hub.
type Engine struct {
	st       store.Store
	backend  llm.Backend
	library  *agents.Library
	runner   *engine.Runner
	executor *engine.AgentExecutor
	hub      *streaming.MemoryHub
	vault    secrets.Vault
	logger   *slog.Logger
}

// New constructs an Engine. With no options it opens ./draftloom.db and
// talks to Anthropic using ambient credentials.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg := &config{
		storePath: "file:draftloom.db",
		execCfg:   engine.DefaultExecutorConfig(),
	}
	for _, o := range opts {
		o(cfg)
	}

	if cfg.logger == nil {
		handler := logging.NewCorrelationHandler(slog.NewJSONHandler(os.Stderr, nil))
		cfg.logger = slog.New(handler)
	}
	if cfg.backend == nil {
		cfg.backend = anthropic.New()
	}
	if cfg.st == nil {
		st, err := store.NewLibSQLStore(cfg.storePath)
		if err != nil {
			return nil, err
		}
		cfg.st = st
	}
	if !cfg.skipMigrate {
		if err := cfg.st.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	library := agents.NewLibrary()
	validator := validation.NewSchemaValidator()
	generator := generation.NewGenerator(cfg.backend, validator, cfg.logger)
	executor := engine.NewAgentExecutor(library, generator, cfg.logger, cfg.execCfg)
	hub := streaming.NewMemoryHub()
	fsm := engine.NewNodeFSM(cfg.st)
	runner := engine.NewRunner(cfg.st, executor, fsm, hub, cfg.logger)

	e := &Engine{
		st:       cfg.st,
		backend:  cfg.backend,
		library:  library,
		runner:   runner,
		executor: executor,
		hub:      hub,
		logger:   cfg.logger,
	}

	if cfg.vaultCfg != nil {
		vault, err := secrets.NewAESVault(cfg.st, *cfg.vaultCfg)
		if err != nil {
			return nil, err
		}
		e.vault = vault
	}
	return e, nil
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.st.Close()
}

// ExecuteAgent runs a single agent over the given context. For the seven
// known agent types it never fails outright: when both executor tiers are
// exhausted the returned execution carries the agent's fallback default
// and the error describes the last failure. Unknown agent types return a
// nil execution.
func (e *Engine) ExecuteAgent(ctx context.Context, agentType schema.AgentType, actx *schema.AgentContext, customPrompt string) (*AgentExecution, error) {
	outcome, err := e.executor.ExecuteAgent(ctx, agentType, actx, customPrompt)
	if outcome == nil {
		return nil, err
	}
	return &AgentExecution{
		AgentType:      outcome.AgentType,
		Result:         outcome.Result,
		Typed:          outcome.Typed,
		UpdatedContext: outcome.UpdatedContext,
		Tier:           outcome.Tier,
		Attempts:       outcome.Attempts,
	}, err
}

// ExecuteFullWorkflow creates a workflow over the selected agent types
// (all seven when empty), persists it, and runs every node in sequence
// with continue-on-error. The report lists per-node results and errors;
// it is returned even when some nodes failed.
func (e *Engine) ExecuteFullWorkflow(ctx context.Context, storyBrief, manuscript string, selected []schema.AgentType) (*schema.RunReport, error) {
	wf, err := engine.DefaultWorkflow(uuid.NewString(), "full-run", selected)
	if err != nil {
		return nil, err
	}
	if err := e.st.CreateWorkflow(ctx, wf); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create workflow: %s", err.Error()).WithCause(err)
	}
	return e.runner.RunWorkflow(ctx, wf.ID, storyBrief, manuscript)
}

// RunWorkflow re-runs an existing workflow end to end.
func (e *Engine) RunWorkflow(ctx context.Context, workflowID, storyBrief, manuscript string) (*schema.RunReport, error) {
	return e.runner.RunWorkflow(ctx, workflowID, storyBrief, manuscript)
}

// RunNode executes exactly one node of an existing workflow, leaving all
// other nodes' persisted results untouched. Rejected with a BUSY error if
// the workflow already has a node executing.
func (e *Engine) RunNode(ctx context.Context, workflowID, nodeID, storyBrief, manuscript string) (*schema.AgentNode, error) {
	return e.runner.RunNode(ctx, workflowID, nodeID, storyBrief, manuscript)
}

// OnNodeStatus registers a synchronous callback fired on every node
// transition, for live UI updates.
func (e *Engine) OnNodeStatus(cb func(schema.NodeStatusEvent)) {
	e.runner.OnStatus(engine.StatusCallback(cb))
}

// Subscribe attaches a live event stream. The cancel func must be called
// when the consumer goes away.
func (e *Engine) Subscribe(ctx context.Context, filter StreamFilter) (<-chan StreamEvent, func(), error) {
	return e.hub.Subscribe(ctx, filter)
}

// Workflow loads a persisted workflow with its node states and edges.
func (e *Engine) Workflow(ctx context.Context, workflowID string) (*schema.Workflow, error) {
	return e.st.GetWorkflow(ctx, workflowID)
}

// WorkflowDiagram renders the workflow graph as a Mermaid flowchart,
// node colors reflecting current execution status.
func (e *Engine) WorkflowDiagram(ctx context.Context, workflowID string) (string, error) {
	wf, err := e.st.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}
	return diagram.RenderMermaid(wf), nil
}

// Events returns the workflow's event log entries with sequence > since.
func (e *Engine) Events(ctx context.Context, workflowID string, since int64) ([]*Event, error) {
	return e.st.GetEvents(ctx, workflowID, since)
}

// Versions lists persisted document versions, newest first.
func (e *Engine) Versions(ctx context.Context, workflowID string, limit int) ([]*DocumentVersion, error) {
	return e.st.ListVersions(ctx, workflowID, limit)
}

// StoreProviderKey encrypts and stores an LLM provider API key.
// Requires the vault to be configured.
func (e *Engine) StoreProviderKey(ctx context.Context, provider string, key []byte) error {
	if e.vault == nil {
		return schema.NewError(schema.ErrCodeVault, "vault is not configured")
	}
	return e.vault.Store(ctx, secrets.ProviderKey(provider), key)
}

// ResolveProviderKey decrypts a stored provider API key.
func (e *Engine) ResolveProviderKey(ctx context.Context, provider string) ([]byte, error) {
	if e.vault == nil {
		return nil, schema.NewError(schema.ErrCodeVault, "vault is not configured")
	}
	return e.vault.Resolve(ctx, secrets.ProviderKey(provider))
}

package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/draftloom/draftloom/internal/agents"
	"github.com/draftloom/draftloom/internal/generation"
	"github.com/draftloom/draftloom/pkg/schema"
)

// Tier names reported in outcomes and logs.
const (
	TierStructured = "structured"
	TierLegacy     = "legacy"
	TierFallback   = "fallback"
)

// Outcome is the terminal result of executing one agent over a context.
// Result is always populated: a genuine payload from one of the tiers, or
// the task library's fallback default when every tier failed.
type Outcome struct {
	AgentType      schema.AgentType
	Result         json.RawMessage
	Typed          schema.AgentResult
	UpdatedContext *schema.AgentContext
	Tier           string
	Attempts       []schema.GenerationAttempt
}

// tier is one executor strategy. Tiers are tried in order; the first
// success wins.
type tier struct {
	name string
	run  func(ctx context.Context, task *agents.Task, prompt string) (json.RawMessage, []schema.GenerationAttempt, error)
}

// ExecutorConfig tunes the generation calls made by the executor.
type ExecutorConfig struct {
	MaxRetries      int
	Timeout         time.Duration
	Temperature     float64
	MaxTokens       int64
	FallbackEnabled bool // when false, only the structured tier runs
}

// DefaultExecutorConfig returns the production defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetries:      generation.DefaultMaxRetries,
		Timeout:         generation.DefaultTimeout,
		Temperature:     0.7,
		FallbackEnabled: true,
	}
}

// AgentExecutor runs one agent task through an ordered list of tiers:
// structured (schema-validated) first, then the loose legacy tier.
type AgentExecutor struct {
	library   *agents.Library
	generator *generation.Generator
	logger    *slog.Logger
	config    ExecutorConfig
	tiers     []tier
}

// NewAgentExecutor creates an executor over the given task library and
// generator.
func NewAgentExecutor(library *agents.Library, generator *generation.Generator, logger *slog.Logger, config ExecutorConfig) *AgentExecutor {
	e := &AgentExecutor{
		library:   library,
		generator: generator,
		logger:    logger,
		config:    config,
	}
	e.tiers = []tier{{name: TierStructured, run: e.runStructured}}
	if config.FallbackEnabled {
		e.tiers = append(e.tiers, tier{name: TierLegacy, run: e.runLegacy})
	}
	return e
}

// ExecuteAgent runs the agent over the context and returns an Outcome.
// For known agent types the Outcome is always non-nil: if every tier
// failed, Result holds the task's fallback default and the returned error
// is the last tier's error. Unknown agent types fail fast with a nil
// Outcome.
func (e *AgentExecutor) ExecuteAgent(ctx context.Context, agentType schema.AgentType, actx *schema.AgentContext, customPrompt string) (*Outcome, error) {
	task, err := e.library.Task(agentType)
	if err != nil {
		return nil, err
	}

	prompt, err := task.BuildPrompt(actx, customPrompt)
	if err != nil {
		return e.fallbackOutcome(agentType, task, actx, nil), err
	}

	outcome := &Outcome{AgentType: agentType}
	var lastErr error

	for _, t := range e.tiers {
		start := time.Now()
		result, attempts, tierErr := t.run(ctx, task, prompt)
		elapsed := time.Since(start)
		outcome.Attempts = append(outcome.Attempts, attempts...)

		if tierErr == nil {
			e.logger.InfoContext(ctx, "executor tier succeeded",
				slog.String("agent_type", string(agentType)),
				slog.String("tier", t.name),
				slog.Int64("elapsed_ms", elapsed.Milliseconds()),
			)
			outcome.Result = result
			outcome.Tier = t.name
			outcome.UpdatedContext = actx.Extend(agentType, result)
			typed, decErr := e.library.Decode(agentType, result)
			if decErr == nil {
				outcome.Typed = typed
			}
			return outcome, nil
		}

		lastErr = tierErr
		e.logger.WarnContext(ctx, "executor tier failed",
			slog.String("agent_type", string(agentType)),
			slog.String("tier", t.name),
			slog.Int64("elapsed_ms", elapsed.Milliseconds()),
			slog.String("error", tierErr.Error()),
		)
	}

	fo := e.fallbackOutcome(agentType, task, actx, outcome.Attempts)
	return fo, lastErr
}

// fallbackOutcome builds the never-nil outcome used when all tiers fail:
// the hand-authored fallback default threaded into the context so
// downstream agents still see a well-shaped object.
func (e *AgentExecutor) fallbackOutcome(agentType schema.AgentType, task *agents.Task, actx *schema.AgentContext, attempts []schema.GenerationAttempt) *Outcome {
	raw := task.FallbackJSON()
	return &Outcome{
		AgentType:      agentType,
		Result:         raw,
		Typed:          task.Fallback(),
		UpdatedContext: actx.Extend(agentType, raw),
		Tier:           TierFallback,
		Attempts:       attempts,
	}
}

func (e *AgentExecutor) runStructured(ctx context.Context, task *agents.Task, prompt string) (json.RawMessage, []schema.GenerationAttempt, error) {
	res := e.generator.Generate(ctx, generation.Request{
		Prompt:      prompt,
		Schema:      task.Schema,
		MaxRetries:  e.config.MaxRetries,
		Timeout:     e.config.Timeout,
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	})
	if !res.Success {
		return nil, res.Attempts, res.Err
	}
	return res.Output, res.Attempts, nil
}

// runLegacy asks for free-form output, then digs a JSON document out of
// the text and coerces it into the expected shape. No schema guarantee.
func (e *AgentExecutor) runLegacy(ctx context.Context, task *agents.Task, prompt string) (json.RawMessage, []schema.GenerationAttempt, error) {
	res := e.generator.Generate(ctx, generation.Request{
		Prompt:      prompt + "\n\nRespond with a single JSON object.",
		MaxRetries:  e.config.MaxRetries,
		Timeout:     e.config.Timeout,
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	})
	if !res.Success {
		return nil, res.Attempts, res.Err
	}
	out, err := ExtractLoose(task.Type, res.Text)
	if err != nil {
		return nil, res.Attempts, err
	}
	return out, res.Attempts, nil
}

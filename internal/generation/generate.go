// Package generation is the structured generation primitive: one prompt
// (plus optional output schema) wrapped into a validated, retried,
// timed-out result. Failures never escape the Generate boundary; they are
// absorbed into the returned Result.
package generation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/draftloom/draftloom/internal/llm"
	"github.com/draftloom/draftloom/internal/validation"
	"github.com/draftloom/draftloom/pkg/schema"
)

const (
	// DefaultMaxRetries is the attempt budget when the request does not set one.
	DefaultMaxRetries = 3
	// DefaultTimeout guards each individual attempt, not the whole request.
	DefaultTimeout = 120 * time.Second
)

// Request describes one generation task.
type Request struct {
	Prompt      string
	Schema      []byte // optional JSON Schema; nil means free-form text
	MaxRetries  int
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int64
}

// Result is the terminal outcome of a Request. When Success is false, Err
// holds the last attempt's error wrapped as RETRY_EXHAUSTED (or the fatal
// error that aborted the loop early).
type Result struct {
	Success  bool
	Output   json.RawMessage // structured payload (schema requests)
	Text     string          // free-form completion (schema-less requests)
	Err      error
	Attempts []schema.GenerationAttempt
}

// Generator drives the retry loop around a Backend call.
type Generator struct {
	backend   llm.Backend
	validator *validation.SchemaValidator
	logger    *slog.Logger
}

// NewGenerator creates a Generator. The validator may be shared across
// generators; the logger must not be nil.
func NewGenerator(backend llm.Backend, validator *validation.SchemaValidator, logger *slog.Logger) *Generator {
	return &Generator{backend: backend, validator: validator, logger: logger}
}

// Generate runs the attempt loop. It returns a Result and never panics or
// propagates backend errors directly.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts := llm.Options{Temperature: req.Temperature, MaxTokens: req.MaxTokens}

	result := Result{}
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		start := time.Now()
		output, text, err := g.attempt(ctx, req, timeout, opts)
		elapsed := time.Since(start)

		outcome := Classify(err)
		record := schema.GenerationAttempt{
			Attempt:   attempt,
			Timestamp: start.UTC(),
			ElapsedMs: elapsed.Milliseconds(),
			Outcome:   outcome,
		}
		if err != nil {
			record.Error = err.Error()
		}
		result.Attempts = append(result.Attempts, record)

		g.logger.InfoContext(ctx, "generation attempt",
			slog.String("backend", g.backend.Name()),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
			slog.Int64("elapsed_ms", elapsed.Milliseconds()),
			slog.String("outcome", string(outcome)),
		)

		if err == nil {
			result.Success = true
			result.Output = output
			result.Text = text
			return result
		}
		lastErr = err

		// A cancelled parent context means the run is shutting down.
		if ctx.Err() != nil && outcome != schema.OutcomeTimeout {
			break
		}

		if !AllowRetry(attempt, maxRetries, outcome) {
			break
		}
		if waitErr := WaitForBackoff(ctx, BackoffFor(attempt, outcome)); waitErr != nil {
			break
		}
	}

	result.Err = schema.NewErrorf(schema.ErrCodeRetryExhausted,
		"generation failed after %d attempt(s): %s", len(result.Attempts), lastErr.Error()).
		WithCause(lastErr)
	return result
}

// attempt performs a single guarded backend call, including schema
// validation when a schema is supplied.
func (g *Generator) attempt(ctx context.Context, req Request, timeout time.Duration, opts llm.Options) (json.RawMessage, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(req.Schema) == 0 {
		text, err := g.backend.GenerateText(attemptCtx, req.Prompt, opts)
		if err != nil {
			return nil, "", err
		}
		return nil, text, nil
	}

	output, err := g.backend.GenerateStructured(attemptCtx, req.Prompt, req.Schema, opts)
	if err != nil {
		return nil, "", err
	}
	if err := g.validator.Validate(output, req.Schema); err != nil {
		return nil, "", err
	}
	return output, "", nil
}

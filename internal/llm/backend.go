// Package llm abstracts the generation-backend collaborator: one interface
// over provider SDKs plus an in-memory mock for tests.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Options carries per-call generation parameters. Zero values mean
// provider defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Backend is the minimal interface the orchestration core needs from a
// model provider. Both methods are blocking and honor ctx cancellation.
type Backend interface {
	// Name identifies the provider ("anthropic", "openai", "mock").
	Name() string

	// GenerateText produces a free-form completion for the prompt.
	GenerateText(ctx context.Context, prompt string, opts Options) (string, error)

	// GenerateStructured produces a completion constrained by the given
	// JSON Schema. The returned payload is the raw JSON object; callers
	// validate it against the schema themselves.
	GenerateStructured(ctx context.Context, prompt string, schema []byte, opts Options) (json.RawMessage, error)
}

// BackendError wraps a provider error with its HTTP status so the retry
// layer can classify rate limits and credential failures without
// provider-specific branching.
type BackendError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s backend error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s backend error: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// MockBackend is a deterministic in-memory Backend for tests. Responses are
// keyed by prompt substring; unmatched prompts get a generic echo. Errors
// can be scripted per call to exercise the retry layer.
type MockBackend struct {
	mu        sync.Mutex
	responses map[string]string
	script    []error // consumed one per call; nil entries mean success
	calls     int
	prompts   []string
	delay     func(ctx context.Context) error
}

// NewMockBackend creates an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{responses: make(map[string]string)}
}

// AddResponse registers a canned completion returned when the prompt
// contains key.
func (m *MockBackend) AddResponse(key, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key] = response
}

// ScriptErrors queues errors returned by subsequent calls, in order. A nil
// entry lets that call succeed.
func (m *MockBackend) ScriptErrors(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, errs...)
}

// SetDelay installs a hook invoked before each call, e.g. to block until
// ctx expires when simulating a hung provider.
func (m *MockBackend) SetDelay(delay func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// Calls returns how many generation calls were made.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts seen so far, in call order.
func (m *MockBackend) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) next(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	var scripted error
	if len(m.script) > 0 {
		scripted = m.script[0]
		m.script = m.script[1:]
	}
	delay := m.delay
	var resp string
	for key, r := range m.responses {
		if key != "" && strings.Contains(prompt, key) {
			resp = r
			break
		}
	}
	m.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return "", err
		}
	}
	if scripted != nil {
		return "", scripted
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if resp == "" {
		resp = fmt.Sprintf("mock response to: %s", prompt)
	}
	return resp, nil
}

func (m *MockBackend) GenerateText(ctx context.Context, prompt string, _ Options) (string, error) {
	return m.next(ctx, prompt)
}

func (m *MockBackend) GenerateStructured(ctx context.Context, prompt string, _ []byte, _ Options) (json.RawMessage, error) {
	out, err := m.next(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

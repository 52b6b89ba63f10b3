// Package openai adapts the OpenAI Chat Completions API to the llm.Backend
// interface. Structured generation is implemented with a single function
// tool whose parameters are the caller's JSON Schema.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/draftloom/draftloom/internal/llm"
)

const emitToolName = "emit_result"

// Options configures the OpenAI backend.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Backend wraps the OpenAI Chat Completions API behind llm.Backend.
type Backend struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewFromClient creates an OpenAI backend from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

func (b *Backend) Name() string { return "openai" }

// GenerateText produces a free-form completion for the prompt.
func (b *Backend) GenerateText(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	params := b.baseParams(prompt, opts)

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", b.wrapErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", &llm.BackendError{Provider: "openai", Err: errors.New("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStructured exposes a single function tool built from the JSON
// Schema and returns the tool call arguments. A plain-text answer is
// returned as-is for the caller's validator to judge.
func (b *Backend) GenerateStructured(ctx context.Context, prompt string, schemaBytes []byte, opts llm.Options) (json.RawMessage, error) {
	params := b.baseParams(prompt, opts)

	var parameters map[string]any
	if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
		return nil, fmt.Errorf("parse result schema: %w", err)
	}
	params.Tools = []openai.ChatCompletionToolParam{
		{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        emitToolName,
				Description: openai.String("Return the structured result for this task."),
				Parameters:  parameters,
			},
		},
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, b.wrapErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.BackendError{Provider: "openai", Err: errors.New("no choices returned")}
	}

	msg := resp.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == emitToolName && tc.Function.Arguments != "" {
			return json.RawMessage(tc.Function.Arguments), nil
		}
	}
	if msg.Content == "" {
		return nil, &llm.BackendError{Provider: "openai", Err: errors.New("empty response")}
	}
	return json.RawMessage(msg.Content), nil
}

func (b *Backend) baseParams(prompt string, opts llm.Options) openai.ChatCompletionNewParams {
	model := b.opts.Model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature := b.opts.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := b.opts.MaxCompletionTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	return openai.ChatCompletionNewParams{
		Model:               model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
}

func (b *Backend) wrapErr(err error) error {
	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return &llm.BackendError{Provider: "openai", StatusCode: status, Err: err}
}

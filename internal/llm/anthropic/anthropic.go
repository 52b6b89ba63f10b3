// Package anthropic adapts the Anthropic Messages API to the llm.Backend
// interface. Structured generation is implemented with a forced tool whose
// input schema is the caller's JSON Schema.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/draftloom/draftloom/internal/llm"
)

const emitToolName = "emit_result"

// Options configures the Anthropic backend.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Backend wraps the Anthropic Messages API behind llm.Backend.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// New creates an Anthropic backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewFromClient creates an Anthropic backend from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

func (b *Backend) Name() string { return "anthropic" }

// GenerateText produces a free-form completion for the prompt.
func (b *Backend) GenerateText(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	params := b.baseParams(prompt, opts)

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", b.wrapErr(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}

// GenerateStructured asks the model to call a single tool whose input
// schema is the supplied JSON Schema, and returns the tool input. When the
// model answers in plain text instead, that text is returned as-is for the
// caller's validator to judge.
func (b *Backend) GenerateStructured(ctx context.Context, prompt string, schemaBytes []byte, opts llm.Options) (json.RawMessage, error) {
	params := b.baseParams(prompt, opts)

	inputSchema, err := toolInputSchema(schemaBytes)
	if err != nil {
		return nil, err
	}
	params.Tools = []anthropic.ToolUnionParam{
		anthropic.ToolUnionParamOfTool(inputSchema, emitToolName),
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, b.wrapErr(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "tool_use":
			tu := block.AsToolUse()
			if tu.Name == emitToolName && tu.Input != nil {
				raw, err := json.Marshal(tu.Input)
				if err != nil {
					return nil, fmt.Errorf("marshal tool input: %w", err)
				}
				return raw, nil
			}
		case "text":
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return nil, &llm.BackendError{Provider: "anthropic", Err: errors.New("empty response")}
	}
	return json.RawMessage(text.String()), nil
}

func (b *Backend) baseParams(prompt string, opts llm.Options) anthropic.MessageNewParams {
	model := b.opts.Model
	if opts.Model != "" {
		model = anthropic.Model(opts.Model)
	}
	temperature := b.opts.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := b.opts.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	return anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}

func (b *Backend) wrapErr(err error) error {
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return &llm.BackendError{Provider: "anthropic", StatusCode: status, Err: err}
}

// toolInputSchema converts raw JSON Schema bytes into the SDK's tool input
// schema parameter.
func toolInputSchema(schemaBytes []byte) (anthropic.ToolInputSchemaParam, error) {
	var parsed map[string]any
	if err := json.Unmarshal(schemaBytes, &parsed); err != nil {
		return anthropic.ToolInputSchemaParam{}, fmt.Errorf("parse result schema: %w", err)
	}

	schema := anthropic.ToolInputSchemaParam{}
	if props, ok := parsed["properties"]; ok {
		schema.Properties = props
	}
	if required, ok := parsed["required"].([]any); ok {
		reqStrings := make([]string, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok {
				reqStrings = append(reqStrings, s)
			}
		}
		schema.Required = reqStrings
	}
	return schema, nil
}

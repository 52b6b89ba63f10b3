// Package agents is the task library: per-agent-type prompt builders,
// result schemas and fallback defaults. It is the single authority on what
// the seven agent types are and what shape their results take.
package agents

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/draftloom/draftloom/pkg/schema"
)

// Task binds one agent type to its prompt template, result schema and
// fallback default.
type Task struct {
	Type     schema.AgentType
	template string
	Schema   []byte
	fallback func() schema.AgentResult
}

// BuildPrompt constructs the prompt for this task over the given context.
// A non-empty customPrompt overrides the built-in template; it may itself
// contain ${{...}} references.
func (t *Task) BuildPrompt(actx *schema.AgentContext, customPrompt string) (string, error) {
	return buildPrompt(t.template, actx, customPrompt)
}

// Fallback returns the hand-authored default result for this agent type.
func (t *Task) Fallback() schema.AgentResult {
	return t.fallback()
}

// FallbackJSON returns the fallback default marshalled for storage on a node.
func (t *Task) FallbackJSON() json.RawMessage {
	b, err := json.Marshal(t.fallback())
	if err != nil {
		// Fallback values are static literals; this cannot fail at runtime.
		return json.RawMessage(`{}`)
	}
	return b
}

// Library holds the seven known tasks.
type Library struct {
	tasks map[schema.AgentType]*Task
}

// NewLibrary constructs the task library with all seven agent types registered.
func NewLibrary() *Library {
	l := &Library{tasks: make(map[schema.AgentType]*Task, len(schema.KnownAgentTypes))}
	register := func(t schema.AgentType, template, schemaJSON string, fallback func() schema.AgentResult) {
		l.tasks[t] = &Task{
			Type:     t,
			template: template,
			Schema:   []byte(schemaJSON),
			fallback: fallback,
		}
	}

	register(schema.AgentStoryIntelligence, storyIntelligencePrompt, storyIntelligenceSchema, fallbackStoryIntelligence)
	register(schema.AgentKnowledgeGraph, knowledgeGraphPrompt, knowledgeGraphSchema, fallbackKnowledgeGraph)
	register(schema.AgentTemporalReasoning, temporalReasoningPrompt, temporalReasoningSchema, fallbackTemporalReasoning)
	register(schema.AgentContinuityValidator, continuityValidatorPrompt, continuityValidatorSchema, fallbackContinuityValidator)
	register(schema.AgentCreativeCoauthor, creativeCoauthorPrompt, creativeCoauthorSchema, fallbackCreativeCoauthor)
	register(schema.AgentIntelligentRecall, intelligentRecallPrompt, intelligentRecallSchema, fallbackIntelligentRecall)
	register(schema.AgentCinematicTeaser, cinematicTeaserPrompt, cinematicTeaserSchema, fallbackCinematicTeaser)
	return l
}

// Task returns the task for an agent type, or an UNKNOWN_AGENT_TYPE error.
// Unknown types fail fast rather than no-opping.
func (l *Library) Task(agentType schema.AgentType) (*Task, error) {
	task, ok := l.tasks[agentType]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownAgentType,
			"unknown agent type %q; known types: %v", agentType, schema.KnownAgentTypes)
	}
	return task, nil
}

// Decode maps a stored result payload onto its typed representation.
// Payloads that do not decode into the expected shape come back as the
// narrow UnknownResult variant, never as an error for well-formed JSON.
func (l *Library) Decode(agentType schema.AgentType, raw json.RawMessage) (schema.AgentResult, error) {
	if _, err := l.Task(agentType); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return schema.UnknownResult{AgentType: agentType, Raw: nil}, nil
	}

	var (
		result schema.AgentResult
		err    error
	)
	switch agentType {
	case schema.AgentStoryIntelligence:
		var r schema.StoryIntelligenceResult
		err = strictUnmarshal(raw, &r)
		result = r
	case schema.AgentKnowledgeGraph:
		var r schema.KnowledgeGraphResult
		err = strictUnmarshal(raw, &r)
		result = r
	case schema.AgentTemporalReasoning:
		var r schema.TemporalReasoningResult
		err = strictUnmarshal(raw, &r)
		result = r
	case schema.AgentContinuityValidator:
		var r schema.ContinuityValidatorResult
		err = strictUnmarshal(raw, &r)
		result = r
	case schema.AgentCreativeCoauthor:
		var r schema.CreativeCoauthorResult
		err = strictUnmarshal(raw, &r)
		result = r
	case schema.AgentIntelligentRecall:
		var r schema.IntelligentRecallResult
		err = strictUnmarshal(raw, &r)
		result = r
	case schema.AgentCinematicTeaser:
		var r schema.CinematicTeaserResult
		err = strictUnmarshal(raw, &r)
		result = r
	}
	if err != nil {
		return schema.UnknownResult{AgentType: agentType, Raw: raw}, nil
	}
	return result, nil
}

// strictUnmarshal decodes raw into v, rejecting payloads whose top level is
// not a JSON object.
func strictUnmarshal(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("result payload is not a JSON object")
	}
	return json.Unmarshal(trimmed, v)
}

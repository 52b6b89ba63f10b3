package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/draftloom/draftloom/pkg/schema"
)

// The legacy tier accepts free-form model output, digs a JSON document
// out of it, and normalizes the document into the agent's expected shape
// with a jq projection. Missing keys get neutral defaults so downstream
// consumers always see the required fields, even if values are thin.
var looseQueries = map[schema.AgentType]string{
	schema.AgentStoryIntelligence: `{
		logline: (.logline // .summary // ""),
		genre: (.genre // ""),
		themes: ((.themes // []) | map(tostring)),
		strengths: ((.strengths // []) | map(tostring)),
		weaknesses: ((.weaknesses // []) | map(tostring)),
		suggestions: ((.suggestions // []) | map(tostring))
	}`,
	schema.AgentKnowledgeGraph: `{
		entities: ((.entities // .nodes // []) | map({
			id: (.id // .name // "" | tostring),
			name: (.name // .id // "" | tostring),
			kind: (.kind // .type // "unknown" | tostring),
			description: (.description // "" | tostring)
		})),
		relationships: ((.relationships // .edges // []) | map({
			source: (.source // .from // "" | tostring),
			target: (.target // .to // "" | tostring),
			kind: (.kind // .type // .label // "related" | tostring),
			description: (.description // "" | tostring)
		}))
	}`,
	schema.AgentTemporalReasoning: `{
		events: ((.events // .timeline // []) | to_entries | map({
			id: (.value.id // ("event-" + ((.key + 1) | tostring))),
			description: (.value.description // .value.summary // "" | tostring),
			order: (.value.order // (.key + 1)),
			when: (.value.when // "" | tostring)
		})),
		inconsistencies: ((.inconsistencies // []) | map(tostring))
	}`,
	schema.AgentContinuityValidator: `{
		passed: (if has("passed") and (.passed != null) then .passed else true end),
		issues: ((.issues // .problems // []) | map({
			severity: (.severity // "info" | tostring),
			location: (.location // "" | tostring),
			description: (.description // .message // "" | tostring),
			suggestion: (.suggestion // "" | tostring)
		}))
	}`,
	schema.AgentCreativeCoauthor: `{
		scenes: ((.scenes // []) | map({
			heading: (.heading // .title // "SCENE" | tostring),
			content: (.content // .text // "" | tostring),
			notes: (.notes // "" | tostring)
		})),
		alternatives: ((.alternatives // []) | map(tostring))
	}`,
	schema.AgentIntelligentRecall: `{
		references: ((.references // .matches // []) | map({
			query: (.query // "" | tostring),
			excerpt: (.excerpt // .text // "" | tostring),
			relevance: (.relevance // 0)
		})),
		summary: (.summary // "" | tostring)
	}`,
	schema.AgentCinematicTeaser: `{
		title: (.title // "" | tostring),
		voiceover: (.voiceover // .narration // "" | tostring),
		shots: ((.shots // []) | map({
			description: (.description // .shot // "" | tostring),
			duration_sec: (.duration_sec // .duration // 0)
		})),
		taglines: ((.taglines // []) | map(tostring))
	}`,
}

var (
	looseOnce  sync.Once
	looseCodes map[schema.AgentType]*gojq.Code
	looseErr   error
)

func compileLooseQueries() (map[schema.AgentType]*gojq.Code, error) {
	looseOnce.Do(func() {
		looseCodes = make(map[schema.AgentType]*gojq.Code, len(looseQueries))
		for at, q := range looseQueries {
			query, err := gojq.Parse(q)
			if err != nil {
				looseErr = fmt.Errorf("parse loose query for %s: %w", at, err)
				return
			}
			code, err := gojq.Compile(query)
			if err != nil {
				looseErr = fmt.Errorf("compile loose query for %s: %w", at, err)
				return
			}
			looseCodes[at] = code
		}
	})
	return looseCodes, looseErr
}

// ExtractLoose pulls a JSON object out of free-form model text and
// projects it into the agent's expected result shape.
func ExtractLoose(agentType schema.AgentType, text string) (json.RawMessage, error) {
	codes, err := compileLooseQueries()
	if err != nil {
		return nil, err
	}
	code, ok := codes[agentType]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownAgentType,
			"no loose extraction for agent type %q", agentType)
	}

	doc, err := extractJSONDocument(text)
	if err != nil {
		return nil, err
	}

	var input any
	if err := json.Unmarshal(doc, &input); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"extracted document is not valid JSON: %s", err.Error())
	}

	iter := code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "loose projection produced no output")
	}
	if qerr, isErr := v.(error); isErr {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"loose projection failed: %s", qerr.Error())
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// extractJSONDocument finds the first balanced JSON object in text,
// tolerating markdown code fences and surrounding prose.
func extractJSONDocument(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)

	// Prefer a fenced block when present.
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "no JSON object found in model output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return nil, schema.NewError(schema.ErrCodeValidation, "extracted JSON object is malformed")
				}
				return json.RawMessage(candidate), nil
			}
		}
	}
	return nil, schema.NewError(schema.ErrCodeValidation, "unbalanced JSON object in model output")
}

// Package prompt resolves ${{...}} references in prompt templates and
// user-supplied custom prompt overrides against an AgentContext.
//
// Supported references:
//
//	${{brief}}                     story brief
//	${{manuscript}}                manuscript text (may be empty)
//	${{results.<agent-type>}}      prior agent result as compact JSON
package prompt

import (
	"encoding/json"
	"strings"

	"github.com/draftloom/draftloom/pkg/schema"
)

// HasInterpolation reports whether the template contains ${{...}} markers.
func HasInterpolation(template string) bool {
	return strings.Contains(template, "${{")
}

// Resolve scans the template for ${{...}} tokens and substitutes values
// from the context. Unknown references and malformed tokens are errors; a
// missing prior result resolves to the JSON literal null so prompts degrade
// rather than fail mid-run.
func Resolve(template string, actx *schema.AgentContext) (string, error) {
	if actx == nil {
		return "", schema.NewError(schema.ErrCodeInterpolation, "agent context is nil")
	}

	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "${{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 3

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		end += start

		expr := strings.TrimSpace(template[start:end])
		if expr == "" {
			return "", schema.NewError(schema.ErrCodeInterpolation, "empty variable reference: ${{  }}")
		}
		if strings.Contains(expr, "${{") {
			return "", schema.NewError(schema.ErrCodeInterpolation,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}

		val, err := resolveExpr(expr, actx)
		if err != nil {
			return "", err
		}
		result.WriteString(val)

		i = end + 2
	}

	return result.String(), nil
}

func resolveExpr(expr string, actx *schema.AgentContext) (string, error) {
	switch expr {
	case "brief":
		return actx.StoryBrief, nil
	case "manuscript":
		return actx.Manuscript, nil
	}

	if agentType, ok := strings.CutPrefix(expr, "results."); ok {
		raw := actx.Result(schema.AgentType(agentType))
		if len(raw) == 0 {
			return "null", nil
		}
		// Compact to keep prompts tight regardless of how the result
		// was stored.
		var buf strings.Builder
		if err := compactJSON(&buf, raw); err != nil {
			return string(raw), nil
		}
		return buf.String(), nil
	}

	return "", schema.NewErrorf(schema.ErrCodeInterpolation, "unknown reference %q", expr)
}

func compactJSON(buf *strings.Builder, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

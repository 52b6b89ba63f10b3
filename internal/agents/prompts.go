package agents

import (
	"github.com/draftloom/draftloom/internal/prompt"
	"github.com/draftloom/draftloom/pkg/schema"
)

// Prompt templates. References are resolved by internal/prompt against the
// node's AgentContext; prior results arrive as compact JSON (or the
// literal null when the producing agent has not run).

const storyIntelligencePrompt = `You are a story development analyst for a screenwriting tool.
Analyze the following story brief and respond with a structured assessment.

Story brief:
${{brief}}

Manuscript excerpt (may be empty):
${{manuscript}}

Produce: a one-sentence logline, the primary genre, the central themes,
the strongest elements, the weakest elements, and concrete suggestions.`

const knowledgeGraphPrompt = `You are a narrative knowledge-graph extractor.
From the story material below, extract every character, location, object and
faction as entities, and the meaningful relationships between them.

Story brief:
${{brief}}

Story analysis:
${{results.story-intelligence}}

Manuscript excerpt (may be empty):
${{manuscript}}

Entity ids must be short lowercase slugs. Every relationship must reference
entity ids that appear in your entity list.`

const temporalReasoningPrompt = `You are a story-timeline analyst.
Reconstruct the chronological order of story events and flag temporal
inconsistencies (impossible orderings, contradictory time references).

Story brief:
${{brief}}

Story analysis:
${{results.story-intelligence}}

Manuscript excerpt (may be empty):
${{manuscript}}

Number events by in-story chronological order starting at 1, which may
differ from the order of presentation.`

const continuityValidatorPrompt = `You are a continuity checker for screenplays.
Cross-reference the knowledge graph and the timeline against the manuscript
and report continuity problems: contradictions in character facts, objects
appearing before their introduction, location mismatches, timeline breaks.

Knowledge graph:
${{results.knowledge-graph}}

Timeline:
${{results.temporal-reasoning}}

Manuscript excerpt (may be empty):
${{manuscript}}

Classify each issue as info, warning or error. Set passed to true only if
no error-severity issues exist.`

const creativeCoauthorPrompt = `You are a creative co-writer.
Draft the next scenes for this story, consistent with the analysis and any
continuity findings below. Use standard screenplay scene headings.

Story brief:
${{brief}}

Story analysis:
${{results.story-intelligence}}

Continuity findings:
${{results.continuity-validator}}

Manuscript excerpt (may be empty):
${{manuscript}}

Propose 1-3 scenes plus alternative directions the writer could take.`

const intelligentRecallPrompt = `You are a manuscript recall assistant.
Given the story brief, surface the passages of the manuscript most relevant
to the current writing focus, with a relevance score between 0 and 1, and
summarize what the retrieved passages establish.

Story brief:
${{brief}}

Manuscript excerpt (may be empty):
${{manuscript}}`

const cinematicTeaserPrompt = `You are a trailer-house creative director.
Write a cinematic teaser pitch for this story: a title, a voiceover script,
a shot list, and tagline options.

Story brief:
${{brief}}

Story analysis:
${{results.story-intelligence}}

Scene drafts:
${{results.creative-coauthor}}

Keep the voiceover under 120 words. Each shot needs a visual description;
durations are in seconds.`

// buildPrompt resolves the task's template (or the custom override)
// against the context. The manuscript is truncated to the token budget
// before interpolation so prompts stay within model limits.
func buildPrompt(template string, actx *schema.AgentContext, customPrompt string) (string, error) {
	bounded := *actx
	bounded.Manuscript = TruncateTokens(actx.Manuscript, manuscriptTokenBudget)

	if customPrompt != "" {
		if prompt.HasInterpolation(customPrompt) {
			return prompt.Resolve(customPrompt, &bounded)
		}
		return customPrompt, nil
	}
	return prompt.Resolve(template, &bounded)
}

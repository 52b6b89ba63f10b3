package schema

import "encoding/json"

// AgentType identifies one of the seven specialized generation tasks.
type AgentType string

const (
	AgentStoryIntelligence   AgentType = "story-intelligence"
	AgentKnowledgeGraph      AgentType = "knowledge-graph"
	AgentTemporalReasoning   AgentType = "temporal-reasoning"
	AgentContinuityValidator AgentType = "continuity-validator"
	AgentCreativeCoauthor    AgentType = "creative-coauthor"
	AgentIntelligentRecall   AgentType = "intelligent-recall"
	AgentCinematicTeaser     AgentType = "cinematic-teaser"
)

// KnownAgentTypes lists all recognized agent types in default workflow order.
var KnownAgentTypes = []AgentType{
	AgentStoryIntelligence,
	AgentKnowledgeGraph,
	AgentTemporalReasoning,
	AgentContinuityValidator,
	AgentCreativeCoauthor,
	AgentIntelligentRecall,
	AgentCinematicTeaser,
}

// IsKnownAgentType reports whether t is one of the seven recognized types.
func IsKnownAgentType(t AgentType) bool {
	for _, k := range KnownAgentTypes {
		if k == t {
			return true
		}
	}
	return false
}

// AgentContext is the immutable snapshot consumed by a node: the story
// brief, optional manuscript text, and prior agents' results. Nodes never
// mutate a context in place; Extend produces the copy threaded forward.
type AgentContext struct {
	StoryBrief string                        `json:"story_brief"`
	Manuscript string                        `json:"manuscript,omitempty"`
	Results    map[AgentType]json.RawMessage `json:"results"`
}

// NewAgentContext creates a fresh context for a workflow run.
func NewAgentContext(storyBrief, manuscript string) *AgentContext {
	return &AgentContext{
		StoryBrief: storyBrief,
		Manuscript: manuscript,
		Results:    make(map[AgentType]json.RawMessage),
	}
}

// Extend returns a copy of the context with one more agent result attached.
// The receiver is left untouched.
func (c *AgentContext) Extend(agentType AgentType, result json.RawMessage) *AgentContext {
	next := &AgentContext{
		StoryBrief: c.StoryBrief,
		Manuscript: c.Manuscript,
		Results:    make(map[AgentType]json.RawMessage, len(c.Results)+1),
	}
	for k, v := range c.Results {
		next.Results[k] = v
	}
	if result != nil {
		next.Results[agentType] = result
	}
	return next
}

// Result returns the prior result for an agent type, or nil.
func (c *AgentContext) Result(agentType AgentType) json.RawMessage {
	return c.Results[agentType]
}

// --- Typed agent results ---
//
// Each agent type produces one concrete result shape. AgentResult is the
// tagged union over those shapes; UnknownResult is the narrow fallback
// variant for payloads that do not decode into the expected type.

// AgentResult is implemented by every per-agent result struct.
type AgentResult interface {
	ResultType() AgentType
}

// StoryIntelligenceResult is the story analysis produced from the brief.
type StoryIntelligenceResult struct {
	Logline     string   `json:"logline"`
	Genre       string   `json:"genre"`
	Themes      []string `json:"themes"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

func (StoryIntelligenceResult) ResultType() AgentType { return AgentStoryIntelligence }

// GraphEntity is a single node of the extracted story knowledge graph.
type GraphEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"` // character, location, object, faction
	Description string `json:"description,omitempty"`
}

// GraphRelationship links two entities of the knowledge graph.
type GraphRelationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
}

// KnowledgeGraphResult is the entity/relationship extraction output.
type KnowledgeGraphResult struct {
	Entities      []GraphEntity       `json:"entities"`
	Relationships []GraphRelationship `json:"relationships"`
}

func (KnowledgeGraphResult) ResultType() AgentType { return AgentKnowledgeGraph }

// TimelineEvent is one ordered story event.
type TimelineEvent struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	When        string `json:"when,omitempty"` // in-story time reference, free-form
}

// TemporalReasoningResult is the reconstructed story timeline.
type TemporalReasoningResult struct {
	Events          []TimelineEvent `json:"events"`
	Inconsistencies []string        `json:"inconsistencies"`
}

func (TemporalReasoningResult) ResultType() AgentType { return AgentTemporalReasoning }

// ContinuityIssue is one detected continuity problem.
type ContinuityIssue struct {
	Severity    string `json:"severity"` // info, warning, error
	Location    string `json:"location,omitempty"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// ContinuityValidatorResult is the continuity check output.
type ContinuityValidatorResult struct {
	Passed bool              `json:"passed"`
	Issues []ContinuityIssue `json:"issues"`
}

func (ContinuityValidatorResult) ResultType() AgentType { return AgentContinuityValidator }

// DraftScene is one scene proposal from the creative co-author.
type DraftScene struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
	Notes   string `json:"notes,omitempty"`
}

// CreativeCoauthorResult holds scene drafts and alternative directions.
type CreativeCoauthorResult struct {
	Scenes       []DraftScene `json:"scenes"`
	Alternatives []string     `json:"alternatives"`
}

func (CreativeCoauthorResult) ResultType() AgentType { return AgentCreativeCoauthor }

// RecallReference is one manuscript passage surfaced by intelligent recall.
type RecallReference struct {
	Query     string  `json:"query"`
	Excerpt   string  `json:"excerpt"`
	Relevance float64 `json:"relevance"`
}

// IntelligentRecallResult is the retrieval output over the manuscript.
type IntelligentRecallResult struct {
	References []RecallReference `json:"references"`
	Summary    string            `json:"summary"`
}

func (IntelligentRecallResult) ResultType() AgentType { return AgentIntelligentRecall }

// TeaserShot is one shot of the cinematic teaser storyboard.
type TeaserShot struct {
	Description string `json:"description"`
	DurationSec int    `json:"duration_sec,omitempty"`
}

// CinematicTeaserResult is the teaser pitch output.
type CinematicTeaserResult struct {
	Title     string       `json:"title"`
	Voiceover string       `json:"voiceover"`
	Shots     []TeaserShot `json:"shots"`
	Taglines  []string     `json:"taglines"`
}

func (CinematicTeaserResult) ResultType() AgentType { return AgentCinematicTeaser }

// UnknownResult is the fallback variant for payloads that do not match the
// agent's declared schema (e.g. legacy-tier output).
type UnknownResult struct {
	AgentType AgentType       `json:"agent_type"`
	Raw       json.RawMessage `json:"raw"`
}

func (u UnknownResult) ResultType() AgentType { return u.AgentType }

package agents

import "github.com/draftloom/draftloom/pkg/schema"

// Fallback values returned when generation fails completely: empty
// collections and neutral classifications, so downstream nodes always
// receive a well-shaped object instead of nothing.

func fallbackStoryIntelligence() schema.AgentResult {
	return schema.StoryIntelligenceResult{
		Logline:     "",
		Genre:       "unclassified",
		Themes:      []string{},
		Strengths:   []string{},
		Weaknesses:  []string{},
		Suggestions: []string{},
	}
}

func fallbackKnowledgeGraph() schema.AgentResult {
	return schema.KnowledgeGraphResult{
		Entities:      []schema.GraphEntity{},
		Relationships: []schema.GraphRelationship{},
	}
}

func fallbackTemporalReasoning() schema.AgentResult {
	return schema.TemporalReasoningResult{
		Events:          []schema.TimelineEvent{},
		Inconsistencies: []string{},
	}
}

func fallbackContinuityValidator() schema.AgentResult {
	// Neutral: no issues found rather than a spurious failure.
	return schema.ContinuityValidatorResult{
		Passed: true,
		Issues: []schema.ContinuityIssue{},
	}
}

func fallbackCreativeCoauthor() schema.AgentResult {
	return schema.CreativeCoauthorResult{
		Scenes:       []schema.DraftScene{},
		Alternatives: []string{},
	}
}

func fallbackIntelligentRecall() schema.AgentResult {
	return schema.IntelligentRecallResult{
		References: []schema.RecallReference{},
		Summary:    "",
	}
}

func fallbackCinematicTeaser() schema.AgentResult {
	return schema.CinematicTeaserResult{
		Title:     "",
		Voiceover: "",
		Shots:     []schema.TeaserShot{},
		Taglines:  []string{},
	}
}

package agents

// JSON Schemas (Draft 2020-12) for the seven agent result payloads.
// Embedded as constants to avoid filesystem dependencies. Key fields are
// required and typed; extra properties from the model are tolerated.

const storyIntelligenceSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["logline", "genre", "themes"],
  "properties": {
    "logline": { "type": "string" },
    "genre": { "type": "string" },
    "themes": { "type": "array", "items": { "type": "string" } },
    "strengths": { "type": "array", "items": { "type": "string" } },
    "weaknesses": { "type": "array", "items": { "type": "string" } },
    "suggestions": { "type": "array", "items": { "type": "string" } }
  }
}`

const knowledgeGraphSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["entities", "relationships"],
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "kind"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "name": { "type": "string", "minLength": 1 },
          "kind": { "type": "string" },
          "description": { "type": "string" }
        }
      }
    },
    "relationships": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "target", "kind"],
        "properties": {
          "source": { "type": "string", "minLength": 1 },
          "target": { "type": "string", "minLength": 1 },
          "kind": { "type": "string" },
          "description": { "type": "string" }
        }
      }
    }
  }
}`

const temporalReasoningSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["events"],
  "properties": {
    "events": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "description", "order"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "description": { "type": "string" },
          "order": { "type": "integer" },
          "when": { "type": "string" }
        }
      }
    },
    "inconsistencies": { "type": "array", "items": { "type": "string" } }
  }
}`

const continuityValidatorSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["passed", "issues"],
  "properties": {
    "passed": { "type": "boolean" },
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["severity", "description"],
        "properties": {
          "severity": { "type": "string", "enum": ["info", "warning", "error"] },
          "location": { "type": "string" },
          "description": { "type": "string" },
          "suggestion": { "type": "string" }
        }
      }
    }
  }
}`

const creativeCoauthorSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["scenes"],
  "properties": {
    "scenes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["heading", "content"],
        "properties": {
          "heading": { "type": "string", "minLength": 1 },
          "content": { "type": "string" },
          "notes": { "type": "string" }
        }
      }
    },
    "alternatives": { "type": "array", "items": { "type": "string" } }
  }
}`

const intelligentRecallSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["references", "summary"],
  "properties": {
    "references": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["query", "excerpt"],
        "properties": {
          "query": { "type": "string" },
          "excerpt": { "type": "string" },
          "relevance": { "type": "number", "minimum": 0, "maximum": 1 }
        }
      }
    },
    "summary": { "type": "string" }
  }
}`

const cinematicTeaserSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["title", "voiceover", "shots"],
  "properties": {
    "title": { "type": "string" },
    "voiceover": { "type": "string" },
    "shots": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": { "type": "string" },
          "duration_sec": { "type": "integer", "minimum": 0 }
        }
      }
    },
    "taglines": { "type": "array", "items": { "type": "string" } }
  }
}`

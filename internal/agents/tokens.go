package agents

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// manuscriptTokenBudget caps how much manuscript text is inlined into a
// prompt. Long scripts are truncated, not rejected.
const manuscriptTokenBudget = 6000

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// TruncateTokens trims text to at most maxTokens tokens (cl100k_base).
// When the tokenizer is unavailable the text is truncated by a rough
// 4-characters-per-token estimate instead.
func TruncateTokens(text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return ""
	}

	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})

	if encoding == nil {
		limit := maxTokens * 4
		runes := []rune(text)
		if len(runes) <= limit {
			return text
		}
		return string(runes[:limit])
	}

	tokens := encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return encoding.Decode(tokens[:maxTokens])
}

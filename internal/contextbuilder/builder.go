// Package contextbuilder renders conversation history and a new prompt into
// the single prompt string handed to the inference engine.
package contextbuilder

import "strings"

// MaxExchanges bounds how many user/assistant exchanges are kept from history.
// Older entries are dropped, never summarized.
const MaxExchanges = 10

const (
	userPrefix      = "User: "
	assistantPrefix = "Assistant: "
)

// Build turns history (alternating user/assistant texts, user first) and the
// current prompt into an engine prompt. An empty history returns prompt as is
// so the first turn stays as compact as possible.
func Build(history []string, prompt string) string {
	if len(history) == 0 {
		return prompt
	}
	start := 0
	if n := len(history); n > 2*MaxExchanges {
		start = n - 2*MaxExchanges
	}
	var b strings.Builder
	for i := start; i < len(history); i++ {
		// role follows the original index so an odd-length history keeps its parity
		if i%2 == 0 {
			b.WriteString(userPrefix)
		} else {
			b.WriteString(assistantPrefix)
		}
		b.WriteString(strings.TrimSpace(history[i]))
		b.WriteByte('\n')
	}
	b.WriteString(userPrefix)
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteByte('\n')
	b.WriteString(assistantPrefix)
	return b.String()
}

// EstimateTokens approximates the token count of s at four bytes per token.
func EstimateTokens(s string) int { return len(s) / 4 }

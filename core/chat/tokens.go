package chat

import (
	"strings"
	"unicode/utf8"
)

// charsPerToken is the estimation heuristic: 1 token ~ 4 characters.
const charsPerToken = 4

// EstimateTokens estimates the tokens consumed by a completion: ceil((len(prompt)+len(output))/4).
// Lengths are counted in characters.
func EstimateTokens(prompt, output string) int {
	n := utf8.RuneCountInString(prompt) + utf8.RuneCountInString(output)
	return (n + charsPerToken - 1) / charsPerToken
}

// PromptText returns the text sent to the engine: the system prompt, the history text parts and the current text.
func PromptText(req CompletionRequest) string {
	var sb strings.Builder
	sb.WriteString(req.SystemPrompt)
	for _, turn := range req.History {
		sb.WriteString(turn.Text())
	}
	sb.WriteString(req.Current.Text())
	return sb.String()
}

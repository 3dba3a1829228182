package utils

// EstimateTokens approximates the token count of a text.
// Uses the common ~4 characters-per-token heuristic. Ideally, use a
// tokenizer-aware counter, but the context budget only needs an upper bound.
func EstimateTokens(text string) int {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	return (len(runes) + 3) / 4
}

// TruncateText caps a string at approximately 'maxTokens' tokens.
// Character-based slicing, same heuristic as EstimateTokens.
func TruncateText(text string, maxTokens int) string {
	runes := []rune(text)
	maxRunes := maxTokens * 4
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}

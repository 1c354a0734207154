package chunker

import "strings"

// tokensPerWord approximates subword tokens per whitespace-separated word.
const tokensPerWord = 1.33

// EstimateTokens gives a rough token count from the word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * tokensPerWord)
	if tokens < 1 && len(strings.TrimSpace(text)) > 0 {
		tokens = 1
	}
	return tokens
}

// wordsForTokens inverts EstimateTokens.
func wordsForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return int(float64(tokens) / tokensPerWord)
}

func wordTokens(words int) int {
	return int(float64(words) * tokensPerWord)
}

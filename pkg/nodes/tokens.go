package nodes

import (
	"strings"
	"unicode"

	"github.com/deepresearch-labs/agent/pkg/cost"
)

// estimateTokens approximates the token count of text with the shared
// cl100k_base tokenizer, the same count cost tracking uses.
func estimateTokens(text string) (int, error) {
	return cost.EstimateTokens(text)
}

// significantWords returns the 3+ character words in text, lowercased,
// used for the subtopic-coverage quality check.
func significantWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			words = append(words, strings.ToLower(f))
		}
	}
	return words
}

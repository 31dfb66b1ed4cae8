// Package tokenizer estimates token counts for prompt text without a
// model-specific vocabulary.
package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// Estimate approximates the token count of text: about four tokens per three
// words, or one per four bytes for text with long unbroken runs, whichever is
// larger. Empty text has zero tokens.
func Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	byWords := len(strings.Fields(text)) * 4 / 3
	byRunes := utf8.RuneCountInString(text) / 4
	return max(byWords, byRunes, 1)
}

// Budget sizes a completion that rewrites text: twice its estimate, kept
// within [floor, ceiling].
func Budget(text string, floor, ceiling int) int {
	return min(max(2*Estimate(text), floor), ceiling)
}

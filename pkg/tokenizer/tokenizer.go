package tokenizer

import (
	"strings"
)

// CountTokens provides a rough token count estimate, about four tokens for
// every three words of English.
func CountTokens(text string) int {
	words := strings.Fields(text)
	return max(len(words)*4/3, 1)
}

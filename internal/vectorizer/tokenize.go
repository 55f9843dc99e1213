package vectorizer

import (
	"strings"
	"unicode"
)

// isWordRune matches the \w class: letters, numbers and underscore
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

// tokenize lowercases text and returns runs of two or more word characters
func tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	start := -1
	runes := 0
	flush := func(end int) {
		if start >= 0 && runes >= 2 {
			tokens = append(tokens, text[start:end])
		}
		start = -1
		runes = 0
	}

	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			runes++
			continue
		}
		flush(i)
	}
	flush(len(text))
	return tokens
}

// ngrams joins consecutive tokens into n-grams of length minN..maxN,
// emitting all unigrams first, then bigrams, and so on
func ngrams(tokens []string, minN, maxN int) []string {
	if minN < 1 {
		minN = 1
	}
	var out []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			if n == 1 {
				out = append(out, tokens[i])
				continue
			}
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

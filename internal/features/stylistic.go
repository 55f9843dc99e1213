// Package features computes the dense stylistic statistics of a text and
// joins them with the lexical TF-IDF columns into one classifier row.
package features

import "github.com/zombar/textdetector/internal/analyzer"

// Count is the number of stylistic columns appended after the lexical ones
const Count = 4

// Column positions within a stylistic row
const (
	EmojiCount = iota
	PunctuationRatio
	DigitRatio
	AvgWordLen
)

// Names lists the stylistic columns in row order
var Names = [Count]string{"emoji_count", "punctuation_ratio", "digit_ratio", "avg_word_len"}

// Vector computes the stylistic statistics of one text
func Vector(text string) [Count]float64 {
	runes := analyzer.CountRunes(text)

	var v [Count]float64
	v[EmojiCount] = float64(runes.Emoji)
	v[PunctuationRatio] = float64(runes.Punctuation) / float64(runes.Length+1)
	v[DigitRatio] = float64(runes.Digits) / float64(runes.Length+1)
	v[AvgWordLen] = analyzer.AverageWordLength(analyzer.Words(text))
	return v
}

// Extract computes one stylistic row per text, in order
func Extract(texts []string) [][]float64 {
	rows := make([][]float64, len(texts))
	for i, text := range texts {
		v := Vector(text)
		rows[i] = v[:]
	}
	return rows
}

// ExtractValues is Extract for loosely typed input: any value that is not a
// string (nil, numbers, ...) is treated as the empty text
func ExtractValues(values []any) [][]float64 {
	texts := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			texts[i] = s
		}
	}
	return Extract(texts)
}

// Package analyzer computes per-text statistics: character, word, sentence
// and paragraph counts, and the rune-level signals the stylistic features
// are built from.
package analyzer

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// Stats describes one text
type Stats struct {
	CharacterCount     int     `json:"character_count"`
	WordCount          int     `json:"word_count"`
	SentenceCount      int     `json:"sentence_count"`
	ParagraphCount     int     `json:"paragraph_count"`
	AverageWordLength  float64 `json:"average_word_length"`
	UniqueWords        int     `json:"unique_words"`
	EmojiCount         int     `json:"emoji_count"`
	PunctuationCount   int     `json:"punctuation_count"`
	DigitCount         int     `json:"digit_count"`
	QuestionCount      int     `json:"question_count"`
	ExclamationCount   int     `json:"exclamation_count"`
	CapitalizedPercent float64 `json:"capitalized_percent"`
}

// Analyze computes the statistics of text
func Analyze(text string) Stats {
	runes := CountRunes(text)
	words := Words(text)

	return Stats{
		CharacterCount:     runes.Length,
		WordCount:          len(words),
		SentenceCount:      countSentences(text),
		ParagraphCount:     countParagraphs(text),
		AverageWordLength:  AverageWordLength(words),
		UniqueWords:        countUniqueWords(words),
		EmojiCount:         runes.Emoji,
		PunctuationCount:   runes.Punctuation,
		DigitCount:         runes.Digits,
		QuestionCount:      runes.Questions,
		ExclamationCount:   runes.Exclamations,
		CapitalizedPercent: calculateCapitalizedPercent(words),
	}
}

// Runes holds the per-code-point counts of a text
type Runes struct {
	Length       int
	Emoji        int
	Punctuation  int
	Digits       int
	Questions    int
	Exclamations int
}

// CountRunes counts code points of text in a single pass
func CountRunes(text string) Runes {
	var c Runes
	for _, r := range text {
		c.Length++
		if IsEmoji(r) {
			c.Emoji++
		}
		if IsPunctuation(r) {
			c.Punctuation++
		}
		if unicode.IsDigit(r) {
			c.Digits++
		}
		switch r {
		case '?':
			c.Questions++
		case '!':
			c.Exclamations++
		}
	}
	return c
}

// Words splits text on whitespace
func Words(text string) []string {
	return strings.Fields(text)
}

// AverageWordLength returns the mean code-point length of words, 0 for none
func AverageWordLength(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	total := 0
	for _, word := range words {
		total += utf8.RuneCountInString(word)
	}
	return float64(total) / float64(len(words))
}

// countSentences counts runs of sentence terminators. Non-blank text without
// one is a single sentence.
func countSentences(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	matches := sentenceEnd.FindAllString(text, -1)
	if len(matches) == 0 {
		return 1
	}
	return len(matches)
}

// countParagraphs counts blank-line separated blocks
func countParagraphs(text string) int {
	count := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			count++
		}
	}
	return count
}

// countUniqueWords counts case-insensitive distinct words
func countUniqueWords(words []string) int {
	unique := make(map[string]bool)
	for _, word := range words {
		unique[strings.ToLower(word)] = true
	}
	return len(unique)
}

// calculateCapitalizedPercent is the share of words starting upper case, in
// percent with two decimals
func calculateCapitalizedPercent(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	capitalized := 0
	for _, word := range words {
		r, _ := utf8.DecodeRuneInString(word)
		if unicode.IsUpper(r) {
			capitalized++
		}
	}
	return math.Round((float64(capitalized)/float64(len(words)))*10000) / 100
}

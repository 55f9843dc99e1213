package analyzer

import (
	"unicode"
	"unicode/utf8"
)

// emojiSet is the fixed reference set of emoji code points. U+FE0F is in the
// set because the frowning face is written with its variation selector.
var emojiSet = getEmojiSet()

func getEmojiSet() map[rune]bool {
	set := make(map[rune]bool)
	ranges := [][2]rune{
		{0x1F600, 0x1F606}, {0x1F609, 0x1F636}, {0x1F641, 0x1F644},
	}
	for _, r := range ranges {
		for c := r[0]; c <= r[1]; c++ {
			set[c] = true
		}
	}
	for _, c := range []rune{
		0x2639, 0xFE0F,
		0x1F910, 0x1F911, 0x1F913, 0x1F914, 0x1F917,
		0x1F923, 0x1F924, 0x1F928, 0x1F929, 0x1F92A, 0x1F92C, 0x1F92F,
	} {
		set[c] = true
	}
	return set
}

// IsEmoji reports whether r is in the reference emoji set
func IsEmoji(r rune) bool {
	return emojiSet[r]
}

// IsPunctuation matches the ASCII punctuation !"#$%&'()*+,-./:;<=>?@[\]^_`{|}~
func IsPunctuation(r rune) bool {
	return r < utf8.RuneSelf && unicode.IsPrint(r) && !unicode.IsLetter(r) &&
		!unicode.IsDigit(r) && r != ' '
}

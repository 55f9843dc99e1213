package features

import (
	"fmt"

	"github.com/zombar/textdetector/internal/vectorizer"
)

// Combine joins lexical and stylistic rows built from the same ordered input.
// Lexical columns come first, stylistic columns follow. Both slices must have
// the same length and every stylistic row must have Count columns; anything
// else is a caller bug and panics.
func Combine(lexical []vectorizer.SparseVector, stylistic [][]float64) []vectorizer.SparseVector {
	if len(lexical) != len(stylistic) {
		panic(fmt.Sprintf("features: combining %d lexical rows with %d stylistic rows", len(lexical), len(stylistic)))
	}
	rows := make([]vectorizer.SparseVector, len(lexical))
	for i := range lexical {
		rows[i] = CombineRow(lexical[i], stylistic[i])
	}
	return rows
}

// CombineRow joins a single lexical row with its stylistic row
func CombineRow(lexical vectorizer.SparseVector, stylistic []float64) vectorizer.SparseVector {
	if len(stylistic) != Count {
		panic(fmt.Sprintf("features: stylistic row has %d columns, want %d", len(stylistic), Count))
	}
	return lexical.Append(stylistic)
}

// Dimension is the width of a combined row for a vocabulary of size vocab
func Dimension(vocab int) int {
	return vocab + Count
}

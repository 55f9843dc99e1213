package vectorizer

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []string{
	"The quick brown fox jumps over the lazy dog.",
	"The lazy dog sleeps all day long.",
	"Furthermore, it is important to note that the fox is quick.",
	"lol the dog ate my homework again 😂",
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"simple", "Hello World", []string{"hello", "world"}},
		{"drops single chars", "a b cd e", []string{"cd"}},
		{"punctuation splits", "don't stop-now", []string{"don", "stop", "now"}},
		{"digits count", "100% sure, 7 days", []string{"100", "sure", "days"}},
		{"underscore is a word char", "snake_case x", []string{"snake_case"}},
		{"unicode letters", "Café naïve", []string{"café", "naïve"}},
		{"empty", "", nil},
		{"emoji only", "😎😎", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tokenize(tt.input))
		})
	}
}

func TestNgrams(t *testing.T) {
	got := ngrams([]string{"aa", "bb", "cc"}, 1, 3)
	expected := []string{"aa", "bb", "cc", "aa bb", "bb cc", "aa bb cc"}
	assert.Equal(t, expected, got)

	assert.Empty(t, ngrams(nil, 1, 3))
	assert.Equal(t, []string{"aa bb"}, ngrams([]string{"aa", "bb"}, 2, 3))
}

func TestFitBuildsSortedVocabulary(t *testing.T) {
	f, err := New(Options{}).Fit(corpus)
	require.NoError(t, err)

	require.Greater(t, f.Size(), 0)
	for i := 1; i < f.Size(); i++ {
		if f.Term(i-1) >= f.Term(i) {
			t.Fatalf("vocabulary not sorted at %d: %q >= %q", i, f.Term(i-1), f.Term(i))
		}
	}

	idx, ok := f.Index("lazy dog")
	require.True(t, ok, "bigram should be in vocabulary")
	assert.Equal(t, "lazy dog", f.Term(idx))

	_, ok = f.Index("the quick brown")
	assert.True(t, ok, "trigram should be in vocabulary")
}

func TestFitIDF(t *testing.T) {
	f, err := New(Options{}).Fit(corpus)
	require.NoError(t, err)

	// "the" appears in all 4 documents, "homework" in one
	theIdx, _ := f.Index("the")
	hwIdx, _ := f.Index("homework")

	assert.InDelta(t, 1.0, f.IDF(theIdx), 1e-12)
	assert.InDelta(t, math.Log(5.0/2.0)+1, f.IDF(hwIdx), 1e-12)
}

func TestFitRespectsMaxFeatures(t *testing.T) {
	f, err := New(Options{MaxFeatures: 5}).Fit(corpus)
	require.NoError(t, err)
	assert.Equal(t, 5, f.Size())

	// the most frequent term overall must survive the cap
	_, ok := f.Index("the")
	assert.True(t, ok)
}

func TestFitEmptyCorpus(t *testing.T) {
	_, err := New(Options{}).Fit(nil)
	assert.True(t, errors.Is(err, ErrEmptyVocabulary))

	_, err = New(Options{}).Fit([]string{"", "a", "!!!"})
	assert.True(t, errors.Is(err, ErrEmptyVocabulary))
}

func TestTransformIsUnitLengthAndSublinear(t *testing.T) {
	f, err := New(Options{NgramMin: 1, NgramMax: 1}).Fit([]string{"aa aa aa bb", "bb cc"})
	require.NoError(t, err)

	v := f.Transform("aa aa aa bb")
	assert.InDelta(t, 1.0, v.L2Norm(), 1e-12)

	aa, _ := f.Index("aa")
	bb, _ := f.Index("bb")
	dense := v.ToDense()
	wantAA := (1 + math.Log(3)) * f.IDF(aa)
	wantBB := 1 * f.IDF(bb)
	assert.InDelta(t, wantAA/wantBB, dense[aa]/dense[bb], 1e-12)
}

func TestTransformFrozenVocabulary(t *testing.T) {
	f, err := New(Options{}).Fit(corpus)
	require.NoError(t, err)

	inputs := []string{
		"completely unseen vocabulary zebra xylophone",
		"Great job!!! 100% 😎",
		"",
		strings.Repeat("fox dog ", 50),
	}
	for _, in := range inputs {
		v := f.Transform(in)
		assert.Equal(t, f.Size(), v.Dim, "dimension must equal vocabulary size")
		for _, idx := range v.Indices {
			if idx < 0 || idx >= f.Size() {
				t.Errorf("index %d outside vocabulary range for %q", idx, in)
			}
		}
	}

	unseen := f.Transform("zebra xylophone")
	assert.Equal(t, 0, unseen.Nnz())
	assert.Equal(t, 0.0, unseen.L2Norm())
}

func TestTransformIdempotent(t *testing.T) {
	f, err := New(Options{}).Fit(corpus)
	require.NoError(t, err)

	first := f.Transform(corpus[2])
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, f.Transform(corpus[2]))
	}
}

func TestFitTransform(t *testing.T) {
	f, rows, err := New(Options{}).FitTransform(corpus)
	require.NoError(t, err)
	require.Len(t, rows, len(corpus))
	for i, row := range rows {
		assert.Equal(t, f.Transform(corpus[i]), row)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f, err := New(Options{MaxFeatures: 40}).Fit(corpus)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))

	loaded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.Size(), loaded.Size())
	assert.Equal(t, f.Options(), loaded.Options())
	for _, text := range corpus {
		assert.Equal(t, f.Transform(text), loaded.Transform(text))
	}
}

func TestFingerprint(t *testing.T) {
	f, err := New(Options{}).Fit(corpus)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))
	loaded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.Fingerprint(), loaded.Fingerprint(), "survives a save/load round trip")

	renamed := make([]string, len(corpus))
	for i, text := range corpus {
		renamed[i] = strings.ReplaceAll(text, "fox", "cat")
	}
	other, err := New(Options{}).Fit(renamed)
	require.NoError(t, err)
	assert.Equal(t, f.Size(), other.Size())
	assert.NotEqual(t, f.Fingerprint(), other.Fingerprint())

	capped, err := New(Options{MaxFeatures: 10}).Fit(corpus)
	require.NoError(t, err)
	assert.NotEqual(t, f.Fingerprint(), capped.Fingerprint())
}

func TestDecodeRejectsCorruptArtifacts(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{"},
		{"empty vocabulary", `{"vocabulary":{},"idf":[],"sublinear_tf":true,"smooth_idf":true,"norm":"l2"}`},
		{"idf length mismatch", `{"vocabulary":{"aa":0},"idf":[1,2],"sublinear_tf":true,"smooth_idf":true,"norm":"l2"}`},
		{"duplicate column", `{"vocabulary":{"aa":0,"bb":0},"idf":[1,1],"sublinear_tf":true,"smooth_idf":true,"norm":"l2"}`},
		{"column out of range", `{"vocabulary":{"aa":3},"idf":[1],"sublinear_tf":true,"smooth_idf":true,"norm":"l2"}`},
		{"wrong weighting", `{"vocabulary":{"aa":0},"idf":[1],"sublinear_tf":false,"smooth_idf":true,"norm":"l2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir() + "/missing.json")
	assert.Error(t, err)
}

func TestSparseVectorAppend(t *testing.T) {
	v := NewSparseVector(3, map[int]float64{0: 0.5, 2: 0.25, 1: 0})
	assert.Equal(t, []int{0, 2}, v.Indices)

	combined := v.Append([]float64{1, 0, 3})
	assert.Equal(t, 6, combined.Dim)
	assert.Equal(t, []int{0, 2, 3, 5}, combined.Indices)
	assert.Equal(t, []float64{0.5, 0.25, 1, 3}, combined.Values)

	// the receiver is untouched
	assert.Equal(t, 3, v.Dim)
	assert.Len(t, v.Indices, 2)
}

func BenchmarkTransform(b *testing.B) {
	f, err := New(Options{}).Fit(corpus)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < b.N; i++ {
		f.Transform(corpus[2])
	}
}

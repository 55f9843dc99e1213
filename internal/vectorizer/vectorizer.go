// Package vectorizer turns text into TF-IDF weighted word n-gram vectors.
//
// A vectorizer starts out Unfit, holding only its options. Fitting it on a
// corpus produces a Fitted vectorizer whose vocabulary and IDF weights are
// frozen: Transform never adds columns, so every vector it returns has exactly
// Size() columns. Only a Fitted vectorizer can be saved, loaded or used to
// transform text.
package vectorizer

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	DefaultMaxFeatures = 15000
	DefaultNgramMin    = 1
	DefaultNgramMax    = 3
)

// ErrEmptyVocabulary is returned when fitting yields no n-grams at all
var ErrEmptyVocabulary = errors.New("empty vocabulary: corpus contains no tokens")

// Options configures an Unfit vectorizer
type Options struct {
	MaxFeatures int
	NgramMin    int
	NgramMax    int
}

func (o Options) withDefaults() Options {
	if o.MaxFeatures <= 0 {
		o.MaxFeatures = DefaultMaxFeatures
	}
	if o.NgramMin <= 0 {
		o.NgramMin = DefaultNgramMin
	}
	if o.NgramMax < o.NgramMin {
		o.NgramMax = DefaultNgramMax
		if o.NgramMax < o.NgramMin {
			o.NgramMax = o.NgramMin
		}
	}
	return o
}

// Unfit is a vectorizer that has not seen a corpus yet
type Unfit struct {
	opts Options
}

// New creates an Unfit vectorizer
func New(opts Options) *Unfit {
	return &Unfit{opts: opts.withDefaults()}
}

// Options returns the effective options
func (u *Unfit) Options() Options {
	return u.opts
}

type termStats struct {
	term  string
	count int // occurrences across the corpus
	docs  int // documents containing the term
}

// Fit builds the vocabulary and IDF weights from texts
func (u *Unfit) Fit(texts []string) (*Fitted, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("failed to fit vectorizer: %w", ErrEmptyVocabulary)
	}

	stats := make(map[string]*termStats)
	for _, text := range texts {
		for term, count := range u.countTerms(text) {
			st, ok := stats[term]
			if !ok {
				st = &termStats{term: term}
				stats[term] = st
			}
			st.count += count
			st.docs++
		}
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("failed to fit vectorizer: %w", ErrEmptyVocabulary)
	}

	ranked := make([]*termStats, 0, len(stats))
	for _, st := range stats {
		ranked = append(ranked, st)
	}
	if len(ranked) > u.opts.MaxFeatures {
		sort.Slice(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if a.count != b.count {
				return a.count > b.count
			}
			if a.docs != b.docs {
				return a.docs > b.docs
			}
			return a.term < b.term
		})
		ranked = ranked[:u.opts.MaxFeatures]
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].term < ranked[j].term })

	n := float64(len(texts))
	f := &Fitted{
		opts:       u.opts,
		vocabulary: make(map[string]int, len(ranked)),
		terms:      make([]string, len(ranked)),
		idf:        make([]float64, len(ranked)),
	}
	for i, st := range ranked {
		f.vocabulary[st.term] = i
		f.terms[i] = st.term
		f.idf[i] = math.Log((1+n)/(1+float64(st.docs))) + 1
	}
	return f, nil
}

// FitTransform fits on texts and returns the vectors of the same texts
func (u *Unfit) FitTransform(texts []string) (*Fitted, []SparseVector, error) {
	f, err := u.Fit(texts)
	if err != nil {
		return nil, nil, err
	}
	return f, f.TransformAll(texts), nil
}

func (u *Unfit) countTerms(text string) map[string]int {
	counts := make(map[string]int)
	for _, gram := range ngrams(tokenize(text), u.opts.NgramMin, u.opts.NgramMax) {
		counts[gram]++
	}
	return counts
}

// Fitted is a vectorizer with a frozen vocabulary. It is read-only and safe
// for concurrent use.
type Fitted struct {
	opts       Options
	vocabulary map[string]int
	terms      []string
	idf        []float64
}

// Size returns the number of vocabulary columns
func (f *Fitted) Size() int {
	return len(f.terms)
}

// Options returns the options the vectorizer was fit with
func (f *Fitted) Options() Options {
	return f.opts
}

// Index returns the column of term, if it is in the vocabulary
func (f *Fitted) Index(term string) (int, bool) {
	idx, ok := f.vocabulary[term]
	return idx, ok
}

// Term returns the n-gram stored at column idx
func (f *Fitted) Term(idx int) string {
	return f.terms[idx]
}

// IDF returns the inverse document frequency weight of column idx
func (f *Fitted) IDF(idx int) float64 {
	return f.idf[idx]
}

// Transform weights the known n-grams of text. Unknown n-grams are dropped.
func (f *Fitted) Transform(text string) SparseVector {
	unfit := Unfit{opts: f.opts}
	weights := make(map[int]float64)
	for term, count := range unfit.countTerms(text) {
		idx, ok := f.vocabulary[term]
		if !ok {
			continue
		}
		weights[idx] = (1 + math.Log(float64(count))) * f.idf[idx]
	}

	var norm float64
	for _, w := range weights {
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for idx := range weights {
			weights[idx] /= norm
		}
	}
	return NewSparseVector(len(f.terms), weights)
}

// TransformAll transforms each text in order
func (f *Fitted) TransformAll(texts []string) []SparseVector {
	rows := make([]SparseVector, len(texts))
	for i, text := range texts {
		rows[i] = f.Transform(text)
	}
	return rows
}

package vectorizer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

// persisted is the on-disk layout of a Fitted vectorizer
type persisted struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	NgramRange  [2]int         `json:"ngram_range"`
	MaxFeatures int            `json:"max_features"`
	SublinearTF bool           `json:"sublinear_tf"`
	SmoothIDF   bool           `json:"smooth_idf"`
	Norm        string         `json:"norm"`
}

// Fingerprint identifies the fitted columns: the hex SHA-256 of the terms in
// column order, each followed by its IDF weight. A classifier records the
// fingerprint of the vectorizer it was trained with.
func (f *Fitted) Fingerprint() string {
	h := sha256.New()
	var weight [8]byte
	for i, term := range f.terms {
		h.Write([]byte(term))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(weight[:], math.Float64bits(f.idf[i]))
		h.Write(weight[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Encode writes the vectorizer as JSON
func (f *Fitted) Encode(w io.Writer) error {
	p := persisted{
		Vocabulary:  f.vocabulary,
		IDF:         f.idf,
		NgramRange:  [2]int{f.opts.NgramMin, f.opts.NgramMax},
		MaxFeatures: f.opts.MaxFeatures,
		SublinearTF: true,
		SmoothIDF:   true,
		Norm:        "l2",
	}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		return fmt.Errorf("failed to encode vectorizer: %w", err)
	}
	return nil
}

// Save writes the vectorizer to path
func (f *Fitted) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create vectorizer file: %w", err)
	}
	if err := f.Encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Decode reads a vectorizer written by Encode
func Decode(r io.Reader) (*Fitted, error) {
	var p persisted
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode vectorizer: %w", err)
	}
	if !p.SublinearTF || !p.SmoothIDF || p.Norm != "l2" {
		return nil, fmt.Errorf("unsupported vectorizer weighting (sublinear_tf=%v smooth_idf=%v norm=%q)",
			p.SublinearTF, p.SmoothIDF, p.Norm)
	}
	if len(p.Vocabulary) == 0 {
		return nil, fmt.Errorf("invalid vectorizer: %w", ErrEmptyVocabulary)
	}
	if len(p.IDF) != len(p.Vocabulary) {
		return nil, fmt.Errorf("invalid vectorizer: %d idf weights for %d terms", len(p.IDF), len(p.Vocabulary))
	}

	terms := make([]string, len(p.Vocabulary))
	for term, idx := range p.Vocabulary {
		if idx < 0 || idx >= len(terms) || terms[idx] != "" {
			return nil, fmt.Errorf("invalid vectorizer: bad column %d for term %q", idx, term)
		}
		terms[idx] = term
	}

	opts := Options{
		MaxFeatures: p.MaxFeatures,
		NgramMin:    p.NgramRange[0],
		NgramMax:    p.NgramRange[1],
	}.withDefaults()

	return &Fitted{
		opts:       opts,
		vocabulary: p.Vocabulary,
		terms:      terms,
		idf:        p.IDF,
	}, nil
}

// Load reads a vectorizer from path
func Load(path string) (*Fitted, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vectorizer file: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

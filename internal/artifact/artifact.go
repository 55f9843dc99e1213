// Package artifact persists and loads the fitted vectorizer and classifier as
// one unit. The two files have fixed names and no version; they are only
// valid together.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zombar/textdetector/internal/classifier"
	"github.com/zombar/textdetector/internal/features"
	"github.com/zombar/textdetector/internal/vectorizer"
)

// File names inside an artifact directory
const (
	VectorizerFile = "vectorizer.json"
	ClassifierFile = "classifier.json"
)

// ErrLoad wraps every failure to load an artifact pair
var ErrLoad = errors.New("failed to load model artifact")

// Artifact is a fitted vectorizer with the classifier trained on its columns.
// It is never modified after construction.
type Artifact struct {
	Vectorizer *vectorizer.Fitted
	Model      *classifier.Model
}

// ErrMismatchedPair means the classifier was trained on another vectorizer
var ErrMismatchedPair = errors.New("classifier was trained with a different vocabulary")

// New pairs a vectorizer with a model, checking the model was trained on
// vocabulary + stylistic columns of this very vectorizer. A freshly fitted
// model without a vocabulary fingerprint is stamped with the vectorizer's.
func New(vec *vectorizer.Fitted, model *classifier.Model) (*Artifact, error) {
	if vec == nil || model == nil {
		return nil, errors.New("artifact needs both a vectorizer and a model")
	}
	if want := features.Dimension(vec.Size()); model.Features != want {
		return nil, fmt.Errorf("model expects %d features, vectorizer produces %d", model.Features, want)
	}

	fingerprint := vec.Fingerprint()
	switch model.Vocabulary {
	case "":
		stamped := *model
		stamped.Vocabulary = fingerprint
		model = &stamped
	case fingerprint:
	default:
		return nil, fmt.Errorf("%w: model %.12s, vectorizer %.12s", ErrMismatchedPair, model.Vocabulary, fingerprint)
	}
	return &Artifact{Vectorizer: vec, Model: model}, nil
}

// Dimension is the width of a combined feature row
func (a *Artifact) Dimension() int {
	return features.Dimension(a.Vectorizer.Size())
}

// Load reads both files from dir. Each file is checked against its JSON
// schema before it is decoded.
func Load(dir string) (*Artifact, error) {
	vecData, err := readValidated(filepath.Join(dir, VectorizerFile), VectorizerFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	vec, err := vectorizer.Decode(bytes.NewReader(vecData))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	modelData, err := readValidated(filepath.Join(dir, ClassifierFile), ClassifierFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	model, err := classifier.Decode(bytes.NewReader(modelData))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	a, err := New(vec, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return a, nil
}

// Save writes both files into dir. Each file is written to a temporary name
// first; the final names only appear once both encodes succeeded.
func (a *Artifact) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	vecTmp, err := writeTemp(dir, VectorizerFile, a.Vectorizer.Save)
	if err != nil {
		return err
	}
	modelTmp, err := writeTemp(dir, ClassifierFile, a.Model.Save)
	if err != nil {
		os.Remove(vecTmp)
		return err
	}

	if err := os.Rename(vecTmp, filepath.Join(dir, VectorizerFile)); err != nil {
		os.Remove(vecTmp)
		os.Remove(modelTmp)
		return fmt.Errorf("failed to publish vectorizer: %w", err)
	}
	if err := os.Rename(modelTmp, filepath.Join(dir, ClassifierFile)); err != nil {
		os.Remove(modelTmp)
		return fmt.Errorf("failed to publish classifier: %w", err)
	}
	return nil
}

func writeTemp(dir, name string, save func(string) error) (string, error) {
	file, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	path := file.Name()
	file.Close()

	if err := save(path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

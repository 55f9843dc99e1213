// Package balancer equalizes label counts of a training corpus and splits it
// into stratified train and test partitions.
package balancer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/zombar/textdetector/internal/models"
)

const (
	// DefaultSeed seeds resampling, shuffling and splitting
	DefaultSeed = 42
	// DefaultTestFraction is the share of each class held out for evaluation
	DefaultTestFraction = 0.10
	// MinSamplesPerClass is the smallest class size a stratified split accepts
	MinSamplesPerClass = 2
)

var (
	// ErrEmptyClass means one of the label partitions has no samples
	ErrEmptyClass = errors.New("one of the classes has zero samples")
	// ErrTooFewSamples means a class is too small to stratify
	ErrTooFewSamples = errors.New("need at least 2 samples per class for a stratified split")
)

// Partition splits a corpus by label
func Partition(samples []models.Sample) (human, ai []models.Sample) {
	for _, s := range samples {
		switch s.Label {
		case models.LabelHuman:
			human = append(human, s)
		case models.LabelAI:
			ai = append(ai, s)
		}
	}
	return human, ai
}

// Balance oversamples the smaller partition with replacement until both have
// the same size, then returns the union in shuffled order. Every original
// sample is kept; only the deficit is drawn at random.
func Balance(human, ai []models.Sample, rng *rand.Rand) ([]models.Sample, error) {
	if len(human) == 0 || len(ai) == 0 {
		return nil, fmt.Errorf("failed to balance corpus (human=%d, ai=%d): %w", len(human), len(ai), ErrEmptyClass)
	}

	switch {
	case len(human) > len(ai):
		ai = oversample(ai, len(human), rng)
	case len(ai) > len(human):
		human = oversample(human, len(ai), rng)
	}

	out := make([]models.Sample, 0, len(human)+len(ai))
	out = append(out, human...)
	out = append(out, ai...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

func oversample(samples []models.Sample, target int, rng *rand.Rand) []models.Sample {
	out := make([]models.Sample, len(samples), target)
	copy(out, samples)
	for len(out) < target {
		out = append(out, samples[rng.Intn(len(samples))])
	}
	return out
}

// Counts returns the number of samples per label
func Counts(samples []models.Sample) map[models.Label]int {
	counts := make(map[models.Label]int, len(models.Labels))
	for _, s := range samples {
		counts[s.Label]++
	}
	return counts
}

// StratifiedSplit holds out testFraction of every class. Each class keeps at
// least one sample on both sides; classes with fewer than two samples are
// rejected.
func StratifiedSplit(samples []models.Sample, testFraction float64, rng *rand.Rand) (train, test []models.Sample, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}

	byLabel := make(map[models.Label][]models.Sample, len(models.Labels))
	for _, s := range samples {
		byLabel[s.Label] = append(byLabel[s.Label], s)
	}

	for _, label := range models.Labels {
		group := byLabel[label]
		if len(group) < MinSamplesPerClass {
			return nil, nil, fmt.Errorf("class %s has %d samples: %w", label, len(group), ErrTooFewSamples)
		}

		shuffled := make([]models.Sample, len(group))
		copy(shuffled, group)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		nTest := int(math.Ceil(float64(len(group)) * testFraction))
		if nTest < 1 {
			nTest = 1
		}
		if nTest > len(group)-1 {
			nTest = len(group) - 1
		}
		test = append(test, shuffled[:nTest]...)
		train = append(train, shuffled[nTest:]...)
	}

	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

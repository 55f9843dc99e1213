// Package artifacttest builds small fitted artifacts for tests.
package artifacttest

import (
	"testing"

	"github.com/zombar/textdetector/internal/artifact"
	"github.com/zombar/textdetector/internal/classifier"
	"github.com/zombar/textdetector/internal/features"
	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/vectorizer"
)

// Corpus is the labeled text Fit trains on
var Corpus = []models.Sample{
	{Text: "lol my dog ate my homework again haha", Label: models.LabelHuman},
	{Text: "omg cant believe this happened to me today!!", Label: models.LabelHuman},
	{Text: "ugh traffic was awful, late again 😩", Label: models.LabelHuman},
	{Text: "best pizza ever 🍕🍕 no regrets", Label: models.LabelHuman},
	{Text: "It is important to note that the results vary considerably.", Label: models.LabelAI},
	{Text: "In conclusion, the proposed approach demonstrates clear benefits.", Label: models.LabelAI},
	{Text: "Furthermore, it is essential to consider the broader implications.", Label: models.LabelAI},
	{Text: "Overall, this analysis provides a comprehensive overview of the topic.", Label: models.LabelAI},
}

// Fit trains an artifact on Corpus with default options
func Fit(tb testing.TB) *artifact.Artifact {
	tb.Helper()

	texts := make([]string, len(Corpus))
	labels := make([]models.Label, len(Corpus))
	for i, s := range Corpus {
		texts[i] = s.Text
		labels[i] = s.Label
	}

	vec, lexical, err := vectorizer.New(vectorizer.Options{}).FitTransform(texts)
	if err != nil {
		tb.Fatalf("failed to fit vectorizer: %v", err)
	}
	model, err := classifier.New(classifier.Options{}).Fit(features.Combine(lexical, features.Extract(texts)), labels)
	if err != nil {
		tb.Fatalf("failed to fit classifier: %v", err)
	}
	a, err := artifact.New(vec, model)
	if err != nil {
		tb.Fatalf("failed to assemble artifact: %v", err)
	}
	return a
}

package classifier

import (
	"fmt"
	"strings"

	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/vectorizer"
)

// ClassMetrics holds per-class evaluation scores
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarises predictions on a held-out set
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Total       int            `json:"total"`
}

// Evaluate predicts rows and scores them against the true labels
func Evaluate(m *Model, rows []vectorizer.SparseVector, truth []models.Label) (Report, error) {
	if len(rows) != len(truth) {
		return Report{}, fmt.Errorf("got %d rows and %d labels", len(rows), len(truth))
	}
	predicted, err := m.PredictAll(rows)
	if err != nil {
		return Report{}, fmt.Errorf("failed to predict evaluation rows: %w", err)
	}
	return Score(truth, predicted), nil
}

// Score builds a report from true and predicted labels. Undefined ratios
// (no predictions or no support) are reported as 0.
func Score(truth, predicted []models.Label) Report {
	r := Report{Total: len(truth)}

	correct := 0
	for i := range truth {
		if truth[i] == predicted[i] {
			correct++
		}
	}
	if len(truth) > 0 {
		r.Accuracy = float64(correct) / float64(len(truth))
	}

	r.MacroAvg.Label = "macro avg"
	r.WeightedAvg.Label = "weighted avg"
	for _, label := range models.Labels {
		var tp, fp, fn int
		for i := range truth {
			switch {
			case truth[i] == label && predicted[i] == label:
				tp++
			case truth[i] != label && predicted[i] == label:
				fp++
			case truth[i] == label && predicted[i] != label:
				fn++
			}
		}

		cm := ClassMetrics{Label: label.String(), Support: tp + fn}
		cm.Precision = ratio(tp, tp+fp)
		cm.Recall = ratio(tp, tp+fn)
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		r.Classes = append(r.Classes, cm)

		n := float64(len(models.Labels))
		r.MacroAvg.Precision += cm.Precision / n
		r.MacroAvg.Recall += cm.Recall / n
		r.MacroAvg.F1 += cm.F1 / n
		r.MacroAvg.Support += cm.Support

		if len(truth) > 0 {
			w := float64(cm.Support) / float64(len(truth))
			r.WeightedAvg.Precision += cm.Precision * w
			r.WeightedAvg.Recall += cm.Recall * w
			r.WeightedAvg.F1 += cm.F1 * w
		}
		r.WeightedAvg.Support += cm.Support
	}
	return r
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// String renders the report as a text table
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%14s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&sb, "%14s %10.2f %10.2f %10.2f %10d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%14s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.Total)
	for _, c := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(&sb, "%14s %10.2f %10.2f %10.2f %10d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	return sb.String()
}

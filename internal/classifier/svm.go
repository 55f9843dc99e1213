// Package classifier implements a binary linear support vector machine over
// sparse feature rows.
//
// Training minimises the L2-regularised squared hinge loss with dual
// coordinate descent (Hsieh et al., 2008), the default solver of liblinear's
// LinearSVC. The bias is learned as the weight of a constant extra feature.
// A fitted Model is immutable; Predict is a pure function of the row.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/vectorizer"
)

const (
	DefaultC         = 1.0
	DefaultTolerance = 1e-4
	DefaultMaxIter   = 1000
	DefaultSeed      = 42
)

var (
	// ErrSingleClass is returned when training labels do not cover both classes
	ErrSingleClass = errors.New("training data must contain both classes")
	// ErrDimensionMismatch is returned for rows whose width differs from the model's
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
)

// Options configures training
type Options struct {
	C         float64
	Tolerance float64
	MaxIter   int
	Seed      int64
}

func (o Options) withDefaults() Options {
	if o.C <= 0 {
		o.C = DefaultC
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIter <= 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	return o
}

// LinearSVC trains Models
type LinearSVC struct {
	opts Options
}

// New creates a trainer
func New(opts Options) *LinearSVC {
	return &LinearSVC{opts: opts.withDefaults()}
}

// Model is a trained linear separator. Classes holds the label set in sorted
// order; a positive decision value selects Classes[1].
type Model struct {
	Classes    []models.Label `json:"classes"`
	Weights    []float64      `json:"weights"`
	Bias       float64        `json:"bias"`
	Features   int            `json:"n_features"`
	Iterations int            `json:"n_iter"`
	Converged  bool           `json:"converged"`
	// Vocabulary is the fingerprint of the vectorizer the model was trained with
	Vocabulary string `json:"vocabulary_sha256,omitempty"`
}

// Fit trains a model on rows with their labels
func (s *LinearSVC) Fit(rows []vectorizer.SparseVector, labels []models.Label) (*Model, error) {
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("got %d rows and %d labels", len(rows), len(labels))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("failed to fit classifier: %w", ErrSingleClass)
	}

	dim := rows[0].Dim
	var pos, neg int
	y := make([]float64, len(labels))
	for i, l := range labels {
		if rows[i].Dim != dim {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, rows[i].Dim, dim, ErrDimensionMismatch)
		}
		switch l {
		case models.Labels[1]:
			y[i] = 1
			pos++
		case models.Labels[0]:
			y[i] = -1
			neg++
		default:
			return nil, fmt.Errorf("row %d has invalid label %d", i, int(l))
		}
	}
	if pos == 0 || neg == 0 {
		return nil, fmt.Errorf("failed to fit classifier (%s=%d, %s=%d): %w",
			models.Labels[1], pos, models.Labels[0], neg, ErrSingleClass)
	}

	// squared hinge loss: diagonal shift 1/(2C), no upper bound on alpha
	diag := 0.5 / s.opts.C
	qd := make([]float64, len(rows))
	for i, row := range rows {
		qd[i] = row.SquaredNorm() + 1 + diag // +1 for the bias feature
	}

	w := make([]float64, dim)
	var b float64
	alpha := make([]float64, len(rows))
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(s.opts.Seed))

	model := &Model{Classes: append([]models.Label(nil), models.Labels...), Features: dim}
	for iter := 0; iter < s.opts.MaxIter; iter++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		pgMax, pgMin := math.Inf(-1), math.Inf(1)
		for _, i := range order {
			row := rows[i]
			g := y[i]*(row.Dot(w)+b) - 1 + diag*alpha[i]

			pg := g
			if alpha[i] == 0 && g > 0 {
				pg = 0
			}
			pgMax = math.Max(pgMax, pg)
			pgMin = math.Min(pgMin, pg)

			if math.Abs(pg) <= 1e-12 {
				continue
			}
			old := alpha[i]
			alpha[i] = math.Max(old-g/qd[i], 0)
			d := (alpha[i] - old) * y[i]
			for k, idx := range row.Indices {
				w[idx] += d * row.Values[k]
			}
			b += d
		}

		model.Iterations = iter + 1
		if pgMax-pgMin <= s.opts.Tolerance {
			model.Converged = true
			break
		}
	}

	model.Weights = w
	model.Bias = b
	return model, nil
}

// Decision returns the signed distance-like score of row
func (m *Model) Decision(row vectorizer.SparseVector) (float64, error) {
	if row.Dim != m.Features {
		return 0, fmt.Errorf("row has %d columns, model expects %d: %w", row.Dim, m.Features, ErrDimensionMismatch)
	}
	return row.Dot(m.Weights) + m.Bias, nil
}

// Predict returns the label for row
func (m *Model) Predict(row vectorizer.SparseVector) (models.Label, error) {
	score, err := m.Decision(row)
	if err != nil {
		return 0, err
	}
	return m.LabelFor(score), nil
}

// LabelFor maps a decision value to a label
func (m *Model) LabelFor(score float64) models.Label {
	if score > 0 {
		return m.Classes[1]
	}
	return m.Classes[0]
}

// PredictAll predicts every row in order
func (m *Model) PredictAll(rows []vectorizer.SparseVector) ([]models.Label, error) {
	out := make([]models.Label, len(rows))
	for i, row := range rows {
		l, err := m.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = l
	}
	return out, nil
}

// Validate checks the model's internal consistency
func (m *Model) Validate() error {
	if len(m.Classes) != 2 || m.Classes[0] != models.Labels[0] || m.Classes[1] != models.Labels[1] {
		return fmt.Errorf("invalid class set %v", m.Classes)
	}
	if m.Features <= 0 || len(m.Weights) != m.Features {
		return fmt.Errorf("model has %d weights for %d features", len(m.Weights), m.Features)
	}
	for i, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight %d is not finite", i)
		}
	}
	if math.IsNaN(m.Bias) || math.IsInf(m.Bias, 0) {
		return errors.New("bias is not finite")
	}
	return nil
}

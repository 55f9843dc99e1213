package models

import (
	"fmt"
	"time"
)

// Label is one of the two classes a trained classifier can emit. The zero
// value is not a label.
type Label int

const (
	LabelAI Label = iota + 1
	LabelHuman
)

// Labels lists the trained label set in sorted name order ("ai" < "human")
var Labels = []Label{LabelAI, LabelHuman}

// String returns the wire name of the label
func (l Label) String() string {
	switch l {
	case LabelAI:
		return "ai"
	case LabelHuman:
		return "human"
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// Valid reports whether l is a member of the trained label set
func (l Label) Valid() bool {
	return l == LabelAI || l == LabelHuman
}

// ParseLabel converts a wire name back into a Label
func ParseLabel(s string) (Label, error) {
	switch s {
	case "ai":
		return LabelAI, nil
	case "human":
		return LabelHuman, nil
	}
	return 0, fmt.Errorf("unknown label %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid label %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Outcome is what a single classification call produced: a trained label,
// or one of the pseudo-outcomes for empty input and per-call failure
type Outcome struct {
	kind  outcomeKind
	label Label
}

type outcomeKind int

const (
	kindLabel outcomeKind = iota
	kindUnknown
	kindFailed
)

var (
	// OutcomeUnknown is returned for empty or whitespace-only input
	OutcomeUnknown = Outcome{kind: kindUnknown}
	// OutcomeFailed is returned when a call failed inside the pipeline
	OutcomeFailed = Outcome{kind: kindFailed}
)

// OutcomeOf wraps a trained label
func OutcomeOf(l Label) Outcome {
	return Outcome{kind: kindLabel, label: l}
}

// Label returns the trained label and true, or false for pseudo-outcomes
// and the zero Outcome
func (o Outcome) Label() (Label, bool) {
	return o.label, o.kind == kindLabel && o.label.Valid()
}

// IsUnknown reports whether the outcome is the empty-input pseudo-label
func (o Outcome) IsUnknown() bool { return o.kind == kindUnknown }

// IsFailed reports whether the call failed
func (o Outcome) IsFailed() bool { return o.kind == kindFailed }

// String returns the wire name ("human", "ai", "unknown" or "failed")
func (o Outcome) String() string {
	switch o.kind {
	case kindUnknown:
		return "unknown"
	case kindFailed:
		return "failed"
	}
	return o.label.String()
}

// ParseOutcome is the inverse of Outcome.String
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "unknown":
		return OutcomeUnknown, nil
	case "failed":
		return OutcomeFailed, nil
	}
	l, err := ParseLabel(s)
	if err != nil {
		return Outcome{}, err
	}
	return OutcomeOf(l), nil
}

// MarshalText implements encoding.TextMarshaler
func (o Outcome) MarshalText() ([]byte, error) {
	if o.kind == kindLabel && !o.label.Valid() {
		return nil, fmt.Errorf("invalid outcome label %d", int(o.label))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Outcome) UnmarshalText(b []byte) error {
	parsed, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Sample is one labeled training text
type Sample struct {
	Text  string `json:"text"`
	Label Label  `json:"label"`
}

// Prediction is a stored classification result
type Prediction struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id,omitempty"`
	Position  int       `json:"position,omitempty"` // index within a batch job
	Text      string    `json:"text"`
	Outcome   Outcome   `json:"prediction"`
	Score     float64   `json:"score"`
	Remark    string    `json:"funny_response"`
	CreatedAt time.Time `json:"created_at"`
}

// TrainingRun records one completed training job
type TrainingRun struct {
	ID             string    `json:"id"`
	CorpusPath     string    `json:"corpus_path"`
	ArtifactDir    string    `json:"artifact_dir"`
	Samples        int       `json:"samples"`
	TrainSize      int       `json:"train_size"`
	TestSize       int       `json:"test_size"`
	VocabularySize int       `json:"vocabulary_size"`
	Accuracy       float64   `json:"accuracy"`
	Report         string    `json:"report"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Batch job statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// BatchJob tracks one asynchronous batch classification
type BatchJob struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id,omitempty"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

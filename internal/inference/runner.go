// Package inference classifies single texts with a loaded artifact.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/zombar/textdetector/internal/artifact"
	"github.com/zombar/textdetector/internal/features"
	"github.com/zombar/textdetector/internal/metrics"
	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/tracing"
)

// ErrInference marks a call that failed inside the pipeline
var ErrInference = errors.New("inference failed")

// Result is the outcome of one classification call
type Result struct {
	Outcome models.Outcome
	Score   float64
	Err     error
}

// Runner classifies texts against a read-only artifact. It holds no per-call
// state and is safe for concurrent use. The artifact can be replaced as a
// whole with Swap; a call in flight keeps the pair it started with.
type Runner struct {
	artifact    atomic.Pointer[artifact.Artifact]
	metrics     *metrics.Metrics
	logger      *slog.Logger
	concurrency int
}

// Option configures a Runner
type Option func(*Runner)

// WithMetrics records every call in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger used for failed calls
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithConcurrency bounds ClassifyBatch parallelism
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRunner creates a runner over a
func NewRunner(a *artifact.Artifact, opts ...Option) *Runner {
	r := &Runner{
		logger:      slog.Default(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	r.artifact.Store(a)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Artifact returns the artifact the runner classifies with
func (r *Runner) Artifact() *artifact.Artifact {
	return r.artifact.Load()
}

// Swap replaces the artifact for subsequent calls
func (r *Runner) Swap(a *artifact.Artifact) {
	r.artifact.Store(a)
	if a != nil && a.Vectorizer != nil {
		r.metrics.SetArtifact(a.Vectorizer.Size(), a.Dimension())
	}
}

// Classify labels one text. Whitespace-only input yields OutcomeUnknown
// without running the pipeline. Failures, including panics, are returned as
// OutcomeFailed with Err set; they never escape the call.
func (r *Runner) Classify(ctx context.Context, text string) (res Result) {
	start := time.Now()
	trimmed := strings.TrimSpace(text)

	ctx, span := tracing.StartSpan(ctx, "inference.classify",
		attribute.Int("text.length", utf8.RuneCountInString(trimmed)))
	defer func() {
		if p := recover(); p != nil {
			res = Result{Outcome: models.OutcomeFailed, Err: fmt.Errorf("%w: %v", ErrInference, p)}
		}
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			r.logger.ErrorContext(ctx, "classification failed", "error", res.Err)
		}
		span.SetAttributes(attribute.String("prediction", res.Outcome.String()))
		span.End()
		r.metrics.ObservePrediction(res.Outcome.String(), len(trimmed), time.Since(start))
	}()

	if trimmed == "" {
		return Result{Outcome: models.OutcomeUnknown}
	}

	a := r.artifact.Load()
	score, err := decide(a, trimmed)
	if err != nil {
		return Result{Outcome: models.OutcomeFailed, Err: fmt.Errorf("%w: %w", ErrInference, err)}
	}
	span.SetAttributes(attribute.Float64("prediction.score", score))
	return Result{Outcome: models.OutcomeOf(a.Model.LabelFor(score)), Score: score}
}

// decide runs transform, extraction, combination and the decision function
func decide(a *artifact.Artifact, text string) (float64, error) {
	lexical := a.Vectorizer.Transform(text)
	stylistic := features.Vector(text)
	row := features.CombineRow(lexical, stylistic[:])
	return a.Model.Decision(row)
}

// ClassifyBatch classifies texts in parallel and returns results in input order
func (r *Runner) ClassifyBatch(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			results[i] = r.Classify(gctx, text)
			return nil
		})
	}
	g.Wait()
	return results
}

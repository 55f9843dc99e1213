// Package trainer runs the offline training pipeline: load the corpus,
// balance and split it, fit the vectorizer and classifier, evaluate, and
// persist the artifact pair.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/textdetector/internal/artifact"
	"github.com/zombar/textdetector/internal/balancer"
	"github.com/zombar/textdetector/internal/classifier"
	"github.com/zombar/textdetector/internal/config"
	"github.com/zombar/textdetector/internal/corpus"
	"github.com/zombar/textdetector/internal/features"
	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/tracing"
	"github.com/zombar/textdetector/internal/vectorizer"
)

// Result is what a successful run produced
type Result struct {
	Run      models.TrainingRun
	Artifact *artifact.Artifact
	Report   classifier.Report
}

// Run trains on cfg.CorpusPath and writes the artifact pair to cfg.ArtifactDir.
// Nothing is written unless every stage before persistence succeeded.
func Run(ctx context.Context, cfg config.TrainConfig, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}

	ctx, span := tracing.StartSpan(ctx, "trainer.run",
		attribute.String("corpus.path", cfg.CorpusPath),
		attribute.String("artifact.dir", cfg.ArtifactDir),
	)
	defer span.End()

	res, err := run(ctx, cfg, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("vocabulary.size", res.Run.VocabularySize),
		attribute.Float64("accuracy", res.Run.Accuracy),
	)
	return res, nil
}

func run(ctx context.Context, cfg config.TrainConfig, logger *slog.Logger) (*Result, error) {
	started := time.Now()
	rng := rand.New(rand.NewSource(cfg.Seed))

	// Load
	_, span := tracing.StartSpan(ctx, "trainer.load")
	samples, stats, err := corpus.Load(cfg.CorpusPath)
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	logger.Info("corpus loaded",
		"rows", stats.Rows,
		"columns", stats.Columns,
		"dropped", stats.Dropped,
		"samples", len(samples),
		"human", stats.Human,
		"ai", stats.AI,
	)

	// Balance
	_, span = tracing.StartSpan(ctx, "trainer.balance")
	human, ai := balancer.Partition(samples)
	balanced, err := balancer.Balance(human, ai, rng)
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to balance corpus: %w", err)
	}
	counts := balancer.Counts(balanced)
	logger.Info("corpus balanced",
		"samples", len(balanced),
		"human", counts[models.LabelHuman],
		"ai", counts[models.LabelAI],
	)

	// Split
	train, test, err := balancer.StratifiedSplit(balanced, cfg.TestFraction, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to split corpus: %w", err)
	}
	logger.Info("corpus split", "train", len(train), "test", len(test))

	trainTexts, trainLabels := unzip(train)
	testTexts, testLabels := unzip(test)

	// Vectorize
	_, span = tracing.StartSpan(ctx, "trainer.vectorize", attribute.Int("documents", len(trainTexts)))
	vec, trainLexical, err := vectorizer.New(cfg.VectorizerOptions()).FitTransform(trainTexts)
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fit vectorizer: %w", err)
	}
	trainRows := features.Combine(trainLexical, features.Extract(trainTexts))
	testRows := features.Combine(vec.TransformAll(testTexts), features.Extract(testTexts))
	logger.Info("features built",
		"vocabulary", vec.Size(),
		"columns", features.Dimension(vec.Size()),
		"train_rows", len(trainRows),
		"test_rows", len(testRows),
	)

	// Fit
	_, span = tracing.StartSpan(ctx, "trainer.fit")
	model, err := classifier.New(cfg.ClassifierOptions()).Fit(trainRows, trainLabels)
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fit classifier: %w", err)
	}
	if !model.Converged {
		logger.Warn("classifier did not converge", "iterations", model.Iterations)
	}

	// Evaluate; a failed evaluation does not block persistence
	report, err := classifier.Evaluate(model, testRows, testLabels)
	if err != nil {
		logger.Error("failed to evaluate model", "error", err)
	} else {
		logger.Info("model report",
			"accuracy", report.Accuracy,
			"support", report.Total,
			"report", report.String(),
		)
	}

	// Persist
	a, err := artifact.New(vec, model)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble artifact: %w", err)
	}
	_, span = tracing.StartSpan(ctx, "trainer.save")
	err = a.Save(cfg.ArtifactDir)
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}
	logger.Info("model and vectorizer saved",
		"dir", cfg.ArtifactDir,
		"vectorizer", artifact.VectorizerFile,
		"classifier", artifact.ClassifierFile,
	)

	return &Result{
		Artifact: a,
		Report:   report,
		Run: models.TrainingRun{
			ID:             uuid.New().String(),
			CorpusPath:     cfg.CorpusPath,
			ArtifactDir:    cfg.ArtifactDir,
			Samples:        len(balanced),
			TrainSize:      len(train),
			TestSize:       len(test),
			VocabularySize: vec.Size(),
			Accuracy:       report.Accuracy,
			Report:         report.String(),
			StartedAt:      started,
			CompletedAt:    time.Now(),
		},
	}, nil
}

func unzip(samples []models.Sample) ([]string, []models.Label) {
	texts := make([]string, len(samples))
	labels := make([]models.Label, len(samples))
	for i, s := range samples {
		texts[i] = s.Text
		labels[i] = s.Label
	}
	return texts, labels
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

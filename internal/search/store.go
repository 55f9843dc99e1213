package search

import (
	"context"
	"log/slog"

	"github.com/zombar/textdetector/internal/database"
	"github.com/zombar/textdetector/internal/models"
)

// indexer is the write side of Index
type indexer interface {
	IndexPrediction(ctx context.Context, p *models.Prediction) error
	IndexPredictions(ctx context.Context, predictions []*models.Prediction) error
}

// IndexedStore is a history database that also indexes every prediction it
// saves. The database stays authoritative: index failures are logged and
// never fail a save.
type IndexedStore struct {
	*database.DB
	index  indexer
	logger *slog.Logger
}

// NewIndexedStore wraps db so saved predictions are indexed in idx
func NewIndexedStore(db *database.DB, idx *Index, logger *slog.Logger) *IndexedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexedStore{DB: db, index: idx, logger: logger}
}

// SavePrediction stores p and indexes it
func (s *IndexedStore) SavePrediction(ctx context.Context, p *models.Prediction) error {
	if err := s.DB.SavePrediction(ctx, p); err != nil {
		return err
	}
	if err := s.index.IndexPrediction(ctx, p); err != nil {
		s.logger.WarnContext(ctx, "failed to index prediction", "prediction_id", p.ID, "error", err)
	}
	return nil
}

// SavePredictions stores a batch and indexes it in one bulk request
func (s *IndexedStore) SavePredictions(ctx context.Context, predictions []*models.Prediction) error {
	if err := s.DB.SavePredictions(ctx, predictions); err != nil {
		return err
	}
	if err := s.index.IndexPredictions(ctx, predictions); err != nil {
		s.logger.WarnContext(ctx, "failed to index predictions", "count", len(predictions), "error", err)
	}
	return nil
}

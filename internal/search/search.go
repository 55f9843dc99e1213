// Package search indexes predictions in Elasticsearch so the history can be
// searched by text and filtered by outcome.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/tracing"
)

// DefaultIndex is the index predictions are written to
const DefaultIndex = "textdetector-predictions"

// ErrEmptyQuery means a search had no text to match
var ErrEmptyQuery = errors.New("search query is empty")

// indexMapping keeps the outcome exact-match and the text full-text
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "job_id":         {"type": "keyword"},
      "position":       {"type": "integer"},
      "text":           {"type": "text"},
      "prediction":     {"type": "keyword"},
      "score":          {"type": "double"},
      "funny_response": {"type": "text", "index": false},
      "created_at":     {"type": "date"}
    }
  }
}`

// Config holds the Elasticsearch connection settings
type Config struct {
	Addresses []string
	Index     string
}

// Index writes and queries predictions in one Elasticsearch index
type Index struct {
	es     *elasticsearch.Client
	index  string
	logger *slog.Logger
}

// New creates an index client. It does not contact the cluster.
func New(cfg Config) (*Index, error) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Index{es: es, index: cfg.Index, logger: slog.Default()}, nil
}

// Name returns the index name
func (i *Index) Name() string {
	return i.index
}

func (i *Index) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracing.StartSpan(ctx, "search."+op,
		attribute.String("db.system", "elasticsearch"),
		attribute.String("search.index", i.index),
	)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EnsureIndex creates the index with its mapping when it does not exist
func (i *Index) EnsureIndex(ctx context.Context) (err error) {
	ctx, span := i.startSpan(ctx, "ensure_index")
	defer func() { finish(span, err) }()

	res, err := i.es.Indices.Exists([]string{i.index}, i.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to check index: %s", res.Status())
	}

	res, err = i.es.Indices.Create(i.index,
		i.es.Indices.Create.WithContext(ctx),
		i.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to create index: %s", responseError(res))
	}
	i.logger.InfoContext(ctx, "search index created", "index", i.index)
	return nil
}

// IndexPrediction writes one prediction, keyed by its ID
func (i *Index) IndexPrediction(ctx context.Context, p *models.Prediction) (err error) {
	ctx, span := i.startSpan(ctx, "index_prediction")
	defer func() { finish(span, err) }()

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode prediction: %w", err)
	}

	res, err := i.es.Index(i.index, bytes.NewReader(body),
		i.es.Index.WithContext(ctx),
		i.es.Index.WithDocumentID(p.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index prediction: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index prediction %s: %s", p.ID, responseError(res))
	}
	return nil
}

// IndexPredictions writes a batch of predictions with one bulk request
func (i *Index) IndexPredictions(ctx context.Context, predictions []*models.Prediction) (err error) {
	if len(predictions) == 0 {
		return nil
	}
	ctx, span := i.startSpan(ctx, "index_predictions")
	span.SetAttributes(attribute.Int("predictions.count", len(predictions)))
	defer func() { finish(span, err) }()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range predictions {
		meta := map[string]map[string]string{"index": {"_id": p.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to encode prediction %s: %w", p.ID, err)
		}
	}

	res, err := i.es.Bulk(&buf,
		i.es.Bulk.WithContext(ctx),
		i.es.Bulk.WithIndex(i.index),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk index predictions: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to bulk index predictions: %s", responseError(res))
	}

	var summary struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&summary); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if summary.Errors {
		return errors.New("bulk index reported item failures")
	}
	return nil
}

// Query selects predictions by text, optionally restricted to one outcome
type Query struct {
	Text    string
	Outcome string
	Limit   int
	Offset  int
}

// Hit is one matching prediction with its relevance
type Hit struct {
	*models.Prediction
	Relevance float64 `json:"relevance"`
}

// Results is one page of matches
type Results struct {
	Total int   `json:"total"`
	Hits  []Hit `json:"hits"`
}

// Search runs a full-text match on the prediction text
func (i *Index) Search(ctx context.Context, q Query) (out *Results, err error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	ctx, span := i.startSpan(ctx, "search")
	defer func() { finish(span, err) }()

	boolQuery := map[string]any{
		"must": []any{map[string]any{"match": map[string]any{"text": q.Text}}},
	}
	if q.Outcome != "" {
		boolQuery["filter"] = []any{map[string]any{"term": map[string]any{"prediction": q.Outcome}}}
	}
	body, err := json.Marshal(map[string]any{"query": map[string]any{"bool": boolQuery}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := i.es.Search(
		i.es.Search.WithContext(ctx),
		i.es.Search.WithIndex(i.index),
		i.es.Search.WithBody(bytes.NewReader(body)),
		i.es.Search.WithFrom(q.Offset),
		i.es.Search.WithSize(q.Limit),
		i.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search predictions: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("failed to search predictions: %s", responseError(res))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score  float64           `json:"_score"`
				Source models.Prediction `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out = &Results{Total: parsed.Hits.Total.Value, Hits: make([]Hit, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		p := h.Source
		out.Hits = append(out.Hits, Hit{Prediction: &p, Relevance: h.Score})
	}
	span.SetAttributes(attribute.Int("search.total", out.Total))
	return out, nil
}

// responseError extracts the reason from an error response
func responseError(res *esapi.Response) string {
	var e struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(res.Body)
	if json.Unmarshal(data, &e) == nil && e.Error.Reason != "" {
		return fmt.Sprintf("%s: %s: %s", res.Status(), e.Error.Type, e.Error.Reason)
	}
	return res.Status()
}

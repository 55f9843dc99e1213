package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/textdetector/internal/analyzer"
	"github.com/zombar/textdetector/internal/database"
	"github.com/zombar/textdetector/internal/features"
	"github.com/zombar/textdetector/internal/inference"
	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/ollama"
	"github.com/zombar/textdetector/internal/queue"
	"github.com/zombar/textdetector/internal/remarks"
	"github.com/zombar/textdetector/internal/search"
	"github.com/zombar/textdetector/internal/tracing"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	maxBodyBytes     = 1 << 20
)

// Store is the history the handler reads and writes
type Store interface {
	SavePrediction(ctx context.Context, p *models.Prediction) error
	GetPrediction(ctx context.Context, id string) (*models.Prediction, error)
	ListPredictions(ctx context.Context, limit, offset int) ([]*models.Prediction, error)
	GetPredictionsByJob(ctx context.Context, jobID string) ([]*models.Prediction, error)
	CreateJob(ctx context.Context, job *models.BatchJob) error
	SetJobTaskID(ctx context.Context, id, taskID string) error
	UpdateJobStatus(ctx context.Context, id, status, errMsg string) error
	GetJob(ctx context.Context, id string) (*models.BatchJob, error)
	ListTrainingRuns(ctx context.Context, limit int) ([]*models.TrainingRun, error)
	CountPredictions(ctx context.Context) (map[string]int, error)
}

// BatchEnqueuer queues batch classification jobs
type BatchEnqueuer interface {
	EnqueueClassifyBatch(ctx context.Context, jobID string, texts []string) (string, error)
}

// SecondOpinioner asks an external model about a text
type SecondOpinioner interface {
	SecondOpinion(ctx context.Context, text string) (*ollama.Opinion, error)
}

// Searcher runs full-text queries over stored predictions
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Results, error)
}

// Config holds the handler's dependencies. Store, Queue, Ollama and Search
// are optional; the routes that need them answer 503 when they are missing.
type Config struct {
	Runner   *inference.Runner
	Remarks  *remarks.Catalog
	Store    Store
	Queue    BatchEnqueuer
	Ollama   SecondOpinioner
	Search   Searcher
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Handler handles HTTP requests
type Handler struct {
	runner   *inference.Runner
	remarks  *remarks.Catalog
	store    Store
	queue    BatchEnqueuer
	ollama   SecondOpinioner
	search   Searcher
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewHandler creates a new API handler with CORS support and metrics
func NewHandler(cfg Config) http.Handler {
	h := newHandler(cfg)

	// Any origin, with credentials
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(h.mux)
}

func newHandler(cfg Config) *Handler {
	h := &Handler{
		runner:   cfg.Runner,
		remarks:  cfg.Remarks,
		store:    cfg.Store,
		queue:    cfg.Queue,
		ollama:   cfg.Ollama,
		search:   cfg.Search,
		gatherer: cfg.Gatherer,
		logger:   cfg.Logger,
		mux:      http.NewServeMux(),
	}
	if h.remarks == nil {
		h.remarks = remarks.New(nil)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.gatherer == nil {
		h.gatherer = prometheus.DefaultGatherer
	}
	h.setupRoutes()
	return h
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	h.mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	h.mux.HandleFunc("/predict", h.handlePredict)
	h.mux.HandleFunc("/api/predict", h.handlePredict)
	h.mux.HandleFunc("/api/analyze", h.handleAnalyze)
	h.mux.HandleFunc("/api/batch", h.handleBatch)
	h.mux.HandleFunc("/api/jobs/", h.handleJobStatus)
	h.mux.HandleFunc("/api/predictions", h.handleListPredictions)
	h.mux.HandleFunc("/api/predictions/", h.handleGetPrediction)
	h.mux.HandleFunc("/api/search", h.handleSearch)
	h.mux.HandleFunc("/api/training-runs", h.handleListTrainingRuns)
	h.mux.HandleFunc("/health", h.handleHealth)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if a := h.runner.Artifact(); a != nil && a.Vectorizer != nil {
		resp["model"] = map[string]int{
			"vocabulary": a.Vectorizer.Size(),
			"features":   a.Dimension(),
		}
	}
	if h.store != nil {
		counts, err := h.store.CountPredictions(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "failed to count predictions", "error", err)
		} else {
			resp["predictions"] = counts
		}
	}
	respondJSON(w, resp, http.StatusOK)
}

// PredictResponse is the body of a successful /predict call
type PredictResponse struct {
	ID            string          `json:"id,omitempty"`
	Prediction    string          `json:"prediction"`
	FunnyResponse string          `json:"funny_response"`
	Score         float64         `json:"score"`
	SecondOpinion *ollama.Opinion `json:"second_opinion,omitempty"`
}

// handlePredict classifies one text sent as a form field or JSON body
func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	text, err := readText(w, r)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tracing.SetSpanAttributes(ctx, attribute.Int("text.length", len(text)))

	res := h.runner.Classify(ctx, text)
	if res.Outcome.IsFailed() {
		respondError(w, "Failed to classify text", http.StatusInternalServerError)
		return
	}

	resp := PredictResponse{
		Prediction:    res.Outcome.String(),
		FunnyResponse: h.remarks.For(res.Outcome),
		Score:         res.Score,
	}

	if _, trained := res.Outcome.Label(); trained && h.ollama != nil {
		op, err := h.ollama.SecondOpinion(ctx, strings.TrimSpace(text))
		if err != nil {
			h.logger.WarnContext(ctx, "second opinion unavailable", "error", err)
		} else {
			resp.SecondOpinion = op
		}
	}

	if h.store != nil {
		p := &models.Prediction{
			ID:        uuid.New().String(),
			Text:      text,
			Outcome:   res.Outcome,
			Score:     res.Score,
			Remark:    resp.FunnyResponse,
			CreatedAt: time.Now(),
		}
		if err := h.store.SavePrediction(ctx, p); err != nil {
			h.logger.ErrorContext(ctx, "failed to save prediction", "error", err)
		} else {
			resp.ID = p.ID
		}
	}

	respondJSON(w, resp, http.StatusOK)
}

// AnalyzeResponse is the body of /api/analyze: the prediction together with
// the text statistics and the stylistic columns the classifier saw
type AnalyzeResponse struct {
	Prediction string             `json:"prediction"`
	Score      float64            `json:"score"`
	Stats      analyzer.Stats     `json:"stats"`
	Features   map[string]float64 `json:"features"`
}

// handleAnalyze explains a prediction. Nothing is stored.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	text, err := readText(w, r)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := h.runner.Classify(r.Context(), text)
	if res.Outcome.IsFailed() {
		respondError(w, "Failed to classify text", http.StatusInternalServerError)
		return
	}

	trimmed := strings.TrimSpace(text)
	vector := features.Vector(trimmed)
	columns := make(map[string]float64, features.Count)
	for i, name := range features.Names {
		columns[name] = vector[i]
	}

	respondJSON(w, AnalyzeResponse{
		Prediction: res.Outcome.String(),
		Score:      res.Score,
		Stats:      analyzer.Analyze(trimmed),
		Features:   columns,
	}, http.StatusOK)
}

var errTextRequired = errors.New("text field is required")

// readText extracts the "text" field from a JSON or form body. A present but
// blank field is not an error.
func readText(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req struct {
			Text *string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", errors.New("invalid request body")
		}
		if req.Text == nil {
			return "", errTextRequired
		}
		return *req.Text, nil
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return "", errors.New("invalid form body")
		}
	} else if err := r.ParseForm(); err != nil {
		return "", errors.New("invalid form body")
	}
	values, ok := r.PostForm["text"]
	if !ok || len(values) == 0 {
		return "", errTextRequired
	}
	return values[0], nil
}

// handleBatch queues a batch of texts for asynchronous classification
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.queue == nil || h.store == nil {
		respondError(w, "Batch classification is not enabled", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Texts []string `json:"texts"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16*maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Texts) == 0 {
		respondError(w, "Texts field is required", http.StatusBadRequest)
		return
	}
	if len(req.Texts) > queue.MaxBatchSize {
		respondError(w, fmt.Sprintf("At most %d texts per batch", queue.MaxBatchSize), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	job := &models.BatchJob{
		ID:        uuid.New().String(),
		Status:    models.JobStatusPending,
		Total:     len(req.Texts),
		CreatedAt: time.Now(),
	}
	tracing.SetSpanAttributes(ctx,
		attribute.String("job.id", job.ID),
		attribute.Int("batch.size", job.Total))

	if err := h.store.CreateJob(ctx, job); err != nil {
		respondError(w, fmt.Sprintf("Failed to create job: %v", err), http.StatusInternalServerError)
		return
	}

	taskID, err := h.queue.EnqueueClassifyBatch(ctx, job.ID, req.Texts)
	if err != nil {
		if uerr := h.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, err.Error()); uerr != nil {
			h.logger.ErrorContext(ctx, "failed to mark job failed", "job_id", job.ID, "error", uerr)
		}
		respondError(w, fmt.Sprintf("Failed to enqueue batch: %v", err), http.StatusInternalServerError)
		return
	}
	if err := h.store.SetJobTaskID(ctx, job.ID, taskID); err != nil {
		h.logger.WarnContext(ctx, "failed to record task id", "job_id", job.ID, "error", err)
	}

	respondJSON(w, map[string]interface{}{
		"job_id":  job.ID,
		"task_id": taskID,
		"status":  "queued",
		"total":   job.Total,
	}, http.StatusAccepted)
}

// handleJobStatus returns a batch job and, once completed, its predictions
func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		respondError(w, "History is not enabled", http.StatusServiceUnavailable)
		return
	}

	jobID := pathID(r.URL.Path, "/api/jobs/")
	if jobID == "" {
		respondError(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, database.ErrNotFound) {
		respondJSON(w, map[string]interface{}{
			"job_id": jobID,
			"status": "not_found",
		}, http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"job_id":     job.ID,
		"task_id":    job.TaskID,
		"status":     job.Status,
		"total":      job.Total,
		"created_at": job.CreatedAt,
	}
	if job.CompletedAt != nil {
		response["completed_at"] = job.CompletedAt
	}
	if job.Error != "" {
		response["error"] = job.Error
	}
	if job.Status == models.JobStatusCompleted {
		predictions, err := h.store.GetPredictionsByJob(ctx, job.ID)
		if err != nil {
			respondError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		response["predictions"] = predictions
	}

	respondJSON(w, response, http.StatusOK)
}

// handleListPredictions lists stored predictions with pagination
func (h *Handler) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		respondError(w, "History is not enabled", http.StatusServiceUnavailable)
		return
	}

	limit, offset := pagination(r)
	predictions, err := h.store.ListPredictions(r.Context(), limit, offset)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, predictions, http.StatusOK)
}

// handleGetPrediction returns one stored prediction
func (h *Handler) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		respondError(w, "History is not enabled", http.StatusServiceUnavailable)
		return
	}

	id := pathID(r.URL.Path, "/api/predictions/")
	if id == "" {
		respondError(w, "Prediction ID is required", http.StatusBadRequest)
		return
	}

	p, err := h.store.GetPrediction(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, "Prediction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, p, http.StatusOK)
}

// handleSearch finds stored predictions by text, optionally by outcome
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.search == nil {
		respondError(w, "Search is not enabled", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		respondError(w, "Query parameter 'q' is required", http.StatusBadRequest)
		return
	}
	outcome := r.URL.Query().Get("prediction")
	if outcome != "" {
		if _, err := models.ParseOutcome(outcome); err != nil {
			respondError(w, fmt.Sprintf("Unknown prediction %q", outcome), http.StatusBadRequest)
			return
		}
	}

	limit, offset := pagination(r)
	results, err := h.search.Search(r.Context(), search.Query{
		Text:    query,
		Outcome: outcome,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, results, http.StatusOK)
}

// handleListTrainingRuns lists recent training runs
func (h *Handler) handleListTrainingRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		respondError(w, "History is not enabled", http.StatusServiceUnavailable)
		return
	}

	limit, _ := pagination(r)
	runs, err := h.store.ListTrainingRuns(r.Context(), limit)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, runs, http.StatusOK)
}

// pagination reads limit and offset, clamping limit to maxListLimit
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

// pathID returns the path segment following prefix
func pathID(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	if idx := strings.Index(id, "/"); idx != -1 {
		id = id[:idx]
	}
	return id
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

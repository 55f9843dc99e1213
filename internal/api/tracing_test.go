package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// TestPredictTracing tests that the predict handler creates proper tracing spans
func TestPredictTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	handler, _, _ := setupTestHandler(t)

	reqBody := `{"text":"It is important to note that the results vary considerably."}`
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")

	ctx, span := tp.Tracer("test").Start(context.Background(), "test-request")
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.handlePredict(w, req)
	span.End()

	tp.ForceFlush(context.Background())

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("No spans were recorded")
	}

	var classifySpan, saveSpan *tracetest.SpanStub
	for i := range spans {
		switch spans[i].Name {
		case "inference.classify":
			classifySpan = &spans[i]
		case "database.save_prediction":
			saveSpan = &spans[i]
		}
	}

	if classifySpan == nil {
		t.Fatal("inference.classify span not found")
	}
	if saveSpan == nil {
		t.Fatal("database.save_prediction span not found")
	}

	// Both run inside the request's trace
	traceID := span.SpanContext().TraceID()
	if classifySpan.SpanContext.TraceID() != traceID {
		t.Error("inference.classify span is not part of the request trace")
	}
	if saveSpan.SpanContext.TraceID() != traceID {
		t.Error("database.save_prediction span is not part of the request trace")
	}

	attrs := map[string]string{}
	for _, attr := range classifySpan.Attributes {
		attrs[string(attr.Key)] = attr.Value.Emit()
	}
	if attrs["prediction"] != "human" && attrs["prediction"] != "ai" {
		t.Errorf("Expected prediction attribute with a trained label, got %q", attrs["prediction"])
	}
	if _, ok := attrs["text.length"]; !ok {
		t.Error("Expected text.length attribute on inference.classify span")
	}
}

// TestBlankPredictTracing checks that unknown outcomes are still traced
func TestBlankPredictTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	handler, _, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"text":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.handlePredict(w, req)
	tp.ForceFlush(context.Background())

	for _, s := range exporter.GetSpans() {
		if s.Name != "inference.classify" {
			continue
		}
		for _, attr := range s.Attributes {
			if attr.Key == "prediction" && attr.Value.AsString() == "unknown" {
				return
			}
		}
		t.Fatalf("Expected prediction=unknown on span, got %v", s.Attributes)
	}
	t.Fatal("inference.classify span not found")
}

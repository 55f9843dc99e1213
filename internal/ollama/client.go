// Package ollama asks a local LLM for a second opinion on who wrote a text.
// The opinion is advisory and never replaces the classifier's label.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zombar/textdetector/internal/models"
	"github.com/zombar/textdetector/internal/tracing"
)

const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "gpt-oss:20b"
	DefaultTimeout = 30 * time.Second
)

// ErrNoJSON means the model's reply contained no JSON object
var ErrNoJSON = errors.New("no JSON object found in response")

// Client wraps the Ollama API client
type Client struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a new Ollama client
func New(ollamaURL, model string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}

	baseURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	return &Client{
		client:  api.NewClient(baseURL, httpClient),
		model:   model,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}, nil
}

// WithTimeout returns a copy of the client using timeout per request
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	cp := *c
	cp.timeout = timeout
	return &cp
}

// Model returns the model the client queries
func (c *Client) Model() string {
	return c.model
}

// GenerateResponse generates a response from the LLM
func (c *Client) GenerateResponse(ctx context.Context, prompt string) (string, error) {
	c.logger.DebugContext(ctx, "sending ollama request", "model", c.model, "timeout", c.timeout)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: new(bool), // false
	}

	var response strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	result := strings.TrimSpace(response.String())
	c.logger.DebugContext(ctx, "ollama response received", "chars", len(result))
	return result, nil
}

// Opinion is the LLM's assessment of a text
type Opinion struct {
	Prediction string   `json:"prediction"`
	Likelihood string   `json:"likelihood"`
	Confidence string   `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Indicators []string `json:"indicators"`
	HumanScore float64  `json:"human_score"`
	Model      string   `json:"model"`
}

const detectionPrompt = `Analyze the following text to determine if it was written by an AI or a human. Consider factors such as:

1. Writing patterns (repetitive structures, overly formal tone, perfect grammar)
2. Vocabulary choices (overuse of certain words, lack of colloquialisms)
3. Content structure (formulaic organization, lack of personal anecdotes)
4. Stylistic markers (balanced arguments, hedging language, transitions)
5. Errors and imperfections (natural human mistakes vs. AI consistency)

Provide your assessment as a JSON object with:
- likelihood: "very_likely" | "likely" | "possible" | "unlikely" | "very_unlikely" (AI-generated)
- confidence: "high" | "medium" | "low"
- reasoning: 1-2 sentences explaining your assessment
- indicators: array of specific markers you found
- human_score: 0-100 where 0 = definitely AI, 100 = definitely human

Text to analyze:
%s

Return ONLY the JSON object, nothing else:`

// SecondOpinion asks the model whether text was written by a human or an AI
func (c *Client) SecondOpinion(ctx context.Context, text string) (op *Opinion, err error) {
	ctx, span := tracing.StartSpan(ctx, "ollama.second_opinion",
		attribute.String("ollama.model", c.model),
		attribute.Int("text.length", len(text)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	response, err := c.GenerateResponse(ctx, fmt.Sprintf(detectionPrompt, text))
	if err != nil {
		return nil, err
	}

	op, err = parseOpinion(response)
	if err != nil {
		return nil, err
	}
	op.Model = c.model
	span.SetAttributes(attribute.String("ollama.prediction", op.Prediction))
	return op, nil
}

// parseOpinion extracts the first JSON object of a reply
func parseOpinion(response string) (*Opinion, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSON
	}

	var op Opinion
	if err := json.Unmarshal([]byte(response[start:end+1]), &op); err != nil {
		return nil, fmt.Errorf("failed to parse AI detection JSON: %w", err)
	}

	if op.HumanScore < 0 {
		op.HumanScore = 0
	}
	if op.HumanScore > 100 {
		op.HumanScore = 100
	}
	op.Prediction = LabelFor(op.HumanScore).String()
	return &op, nil
}

// LabelFor maps a 0-100 human score to a label; 50 and above is human
func LabelFor(humanScore float64) models.Label {
	if humanScore >= 50 {
		return models.LabelHuman
	}
	return models.LabelAI
}

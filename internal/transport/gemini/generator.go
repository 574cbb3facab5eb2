// Package gemini implements text generation over the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/metrics"
)

const provider = "gemini"

// Config holds Gemini generation settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Generator is a domain.Generator backed by genai.
type Generator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewGenerator creates a Gemini generator.
func NewGenerator(ctx context.Context, cfg *Config) (*Generator, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

// Provider returns the provider label used in metrics.
func (g *Generator) Provider() string { return provider }

// Model returns the default model.
func (g *Generator) Model() string { return g.model }

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	model := g.model
	if req.Model != "" {
		model = req.Model
	}

	temp := g.temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	gcfg := &genai.GenerateContentConfig{Temperature: &temp}
	if req.System != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		gcfg.MaxOutputTokens = int32(maxTokens)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), gcfg)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(provider, model, "error").Inc()
		metrics.GenerationErrorsTotal.WithLabelValues(provider, model, "api_error").Inc()
		g.logger.Warn("gemini generation failed", zap.String("model", model), zap.Error(err))
		return domain.GenerationResult{}, wrapError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(provider, model, "error").Inc()
		metrics.GenerationErrorsTotal.WithLabelValues(provider, model, "empty_response").Inc()
		return domain.GenerationResult{}, fmt.Errorf("empty gemini response: %w", domain.ErrGenerationProvider)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(provider, model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())

	out := domain.GenerationResult{Text: text}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
		metrics.GenerationTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(out.PromptTokens))
		metrics.GenerationTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(out.CompletionTokens))
	}
	return out, nil
}

// HealthCheck fetches the configured model's metadata.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return fmt.Errorf("get model %s: %w", g.model, err)
	}
	return nil
}

type apiError struct {
	code int
	err  error
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gemini API error %d: %v: %s", e.code, e.err, domain.ErrGenerationProvider)
}

func (e *apiError) Unwrap() []error { return []error{domain.ErrGenerationProvider, e.err} }

// Retryable reports whether the call may succeed when repeated.
func (e *apiError) Retryable() bool { return e.code == 0 || e.code == 429 || e.code >= 500 }

func wrapError(err error) error {
	var ae genai.APIError
	if errors.As(err, &ae) {
		return &apiError{code: ae.Code, err: err}
	}
	return &apiError{err: err}
}

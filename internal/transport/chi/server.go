package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/logger"
	"github.com/kailas-cloud/qanoneed/internal/usecase/consult"
	healthuc "github.com/kailas-cloud/qanoneed/internal/usecase/health"
	usageuc "github.com/kailas-cloud/qanoneed/internal/usecase/usage"
)

// consultService runs the question flows.
type consultService interface {
	Chat(ctx context.Context, question string) (string, error)
	Roadmap(ctx context.Context, question string) (string, error)
	Virtual(ctx context.Context, userQuery any) (consult.VirtualResult, error)
}

// classifier tags a question with a legal domain.
type classifier interface {
	Classify(ctx context.Context, question string) (domain.Domain, error)
}

// usageReporter builds token budget reports.
type usageReporter interface {
	GetReport(ctx context.Context, period usageuc.Period) usageuc.Report
}

// readinessChecker runs dependency checks.
type readinessChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server holds the HTTP handlers.
type Server struct {
	consult       consultService
	classifier    classifier
	usage         usageReporter
	health        readinessChecker
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. classifier, usage and health may be
// nil; their routes are then not mounted.
func NewServer(c consultService, cl classifier, usage usageReporter, health readinessChecker) *Server {
	return &Server{
		consult:       c,
		classifier:    cl,
		usage:         usage,
		health:        health,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/chat", s.Chat)
	r.Get("/chat/stream", s.ChatStream)
	r.Post("/roadmap", s.Roadmap)
	r.Post("/virtual", s.Virtual)
	if s.classifier != nil {
		r.Post("/classify", s.Classify)
	}
	if s.usage != nil {
		r.Get("/usage", s.Usage)
	}
	r.Get("/health", s.Health)
	r.Get("/ready", s.Ready)
	r.Handle("/metrics", promhttp.Handler())
}

type questionRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

type virtualRequest struct {
	UserQuery any `json:"user_query"`
}

type virtualError struct {
	Error string `json:"error"`
}

type virtualResponse struct {
	Result any `json:"result"`
}

type classifyResponse struct {
	Domain string `json:"domain"`
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type usageResponse struct {
	Period          string    `json:"period"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	TokensUsed      int64     `json:"tokens_used"`
	TokensLimit     int64     `json:"tokens_limit"`
	TokensRemaining int64     `json:"tokens_remaining"`
	Exhausted       bool      `json:"exhausted"`
}

// Chat handles POST /chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, s.consult.Chat)
}

// Roadmap handles POST /roadmap.
func (s *Server) Roadmap(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, s.consult.Roadmap)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, run func(context.Context, string) (string, error)) {
	q, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	answer, err := run(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Answer: answer})
}

// ChatStream handles GET /chat/stream. The whole answer is sent as one event.
func (s *Server) ChatStream(w http.ResponseWriter, r *http.Request) {
	var question string
	if err := runtime.BindQueryParameter("form", true, true, "question", r.URL.Query(), &question); err != nil {
		writeError(w, http.StatusBadRequest, msgQuestionRequired)
		return
	}
	if strings.TrimSpace(question) == "" {
		writeError(w, http.StatusBadRequest, msgQuestionRequired)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, msgStreamingUnsupported)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	answer, err := s.consult.Chat(r.Context(), question)
	if err != nil {
		logger.FromContext(r.Context()).Warn("stream failed", zap.Error(err))
		writeEvent(w, "error", consult.Apology(err))
	} else {
		writeEvent(w, "", answer)
	}
	flusher.Flush()
}

// writeEvent writes one SSE event. Multi-line data becomes one data line per line.
func writeEvent(w http.ResponseWriter, event, data string) {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: " + event + "\n")
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: " + strings.TrimSuffix(line, "\r") + "\n")
	}
	b.WriteString("\n")
	_, _ = fmt.Fprint(w, b.String())
}

// Virtual handles POST /virtual.
func (s *Server) Virtual(w http.ResponseWriter, r *http.Request) {
	var req virtualRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := s.consult.Virtual(r.Context(), req.UserQuery)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if res.Judgment == nil {
		writeJSON(w, http.StatusOK, virtualResponse{Result: virtualError{Error: res.Error}})
		return
	}
	writeJSON(w, http.StatusOK, virtualResponse{Result: res.Judgment})
}

// Classify handles POST /classify.
func (s *Server) Classify(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	d, err := s.classifier.Classify(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{Domain: d.String()})
}

// Usage handles GET /usage.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	var raw *string
	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &raw); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidPeriod)
		return
	}
	var p string
	if raw != nil {
		p = *raw
	}
	period, err := usageuc.ParsePeriod(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidPeriod)
		return
	}

	rep := s.usage.GetReport(r.Context(), period)
	writeJSON(w, http.StatusOK, usageResponse{
		Period:          string(rep.Period),
		PeriodStart:     rep.PeriodStart,
		PeriodEnd:       rep.PeriodEnd,
		TokensUsed:      rep.TokensUsed,
		TokensLimit:     rep.TokensLimit,
		TokensRemaining: rep.TokensRemaining,
		Exhausted:       rep.Exhausted,
	})
}

// Health handles GET /health. Liveness only.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /ready.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, readyResponse{Status: string(healthuc.Healthy), Checks: map[string]string{}})
		return
	}
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResponse{Status: string(report.Status), Checks: checks})
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return "", false
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		writeError(w, http.StatusBadRequest, msgQuestionRequired)
		return "", false
	}
	return q, true
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidInput, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

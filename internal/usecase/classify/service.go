// Package classify maps a free-form legal question onto the closed domain taxonomy.
package classify

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/logger"
)

const promptTemplate = `قم بتحديد المجال القانوني المناسب للسؤال التالي باستخدام أحد هذه المجالات فقط:
%s

السؤال:
%s

أعد فقط اسم المجال بدقة بدون أي شرح إضافي.`

// Service classifies questions with one generation call each.
type Service struct {
	gen        domain.Generator
	cache      *lru.Cache[string, domain.Domain]
	cacheTotal *prometheus.CounterVec
}

// New creates a classifier. cacheSize <= 0 disables caching.
// cacheTotal may be nil.
func New(gen domain.Generator, cacheSize int, cacheTotal *prometheus.CounterVec) (*Service, error) {
	s := &Service{gen: gen, cacheTotal: cacheTotal}
	if cacheSize > 0 {
		c, err := lru.New[string, domain.Domain](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("classifier cache: %w", err)
		}
		s.cache = c
	}
	return s, nil
}

// Prompt renders the classification prompt for question.
func Prompt(question string) string {
	labels := domain.Domains()
	names := make([]string, len(labels))
	for i, d := range labels {
		names[i] = d.String()
	}
	return fmt.Sprintf(promptTemplate, strings.Join(names, "، "), question)
}

// Classify returns the domain label for question.
// A generation failure or an unrecognized answer yields domain.ErrClassificationMiss.
func (s *Service) Classify(ctx context.Context, question string) (domain.Domain, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("empty question: %w", domain.ErrInvalidInput)
	}

	if s.cache != nil {
		if d, ok := s.cache.Get(question); ok {
			s.count("hit")
			return d, nil
		}
		s.count("miss")
	}

	res, err := s.gen.Generate(ctx, domain.GenerationRequest{
		Prompt:      Prompt(question),
		Temperature: domain.Temperature(0),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrClassificationMiss, err)
	}

	d, ok := Match(res.Text)
	if !ok {
		logger.FromContext(ctx).Debug("classifier answer matched no domain", zap.String("answer", res.Text))
		return "", fmt.Errorf("answer %q: %w", truncate(res.Text, 80), domain.ErrClassificationMiss)
	}

	if s.cache != nil {
		s.cache.Add(question, d)
	}
	return d, nil
}

// Match finds the first label contained in answer. The second pass ignores whitespace.
func Match(answer string) (domain.Domain, bool) {
	labels := domain.Domains()
	for _, d := range labels {
		if strings.Contains(answer, string(d)) {
			return d, true
		}
	}

	compact := stripSpace(answer)
	for _, d := range labels {
		if strings.Contains(compact, stripSpace(string(d))) {
			return d, true
		}
	}
	return "", false
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (s *Service) count(result string) {
	if s.cacheTotal != nil {
		s.cacheTotal.WithLabelValues(result).Inc()
	}
}

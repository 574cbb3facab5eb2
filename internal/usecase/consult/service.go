// Package consult composes classification, retrieval and the staged pipeline
// into the chat, roadmap and virtual-judge flows.
package consult

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/logger"
	"github.com/kailas-cloud/qanoneed/internal/usecase/pipeline"
	"github.com/kailas-cloud/qanoneed/internal/usecase/retrieval"
	"github.com/kailas-cloud/qanoneed/internal/workpool"
)

// User-facing messages.
const (
	NoInformationAnswer    = "لم يتم ذكر هذه المعلومة في الصفحة"
	NoMatchesMessage       = "لم يتم العثور على قضايا مشابهة"
	SynthesisFailedMessage = "تعذر توليد الحكم المتوقع"
	apologyPrefix          = "عذراً، حدث خطأ أثناء معالجة سؤالك: "
)

// DefaultTopK is the number of passages fetched per question.
const DefaultTopK = 20

// Apology renders err as the message shown to the user.
func Apology(err error) string {
	return apologyPrefix + err.Error()
}

// VirtualResult is the outcome of the virtual-judge flow. Exactly one of
// Judgment and Error is set.
type VirtualResult struct {
	Judgment *domain.JudgmentResult
	Error    string
}

// Service runs the consultation flows on a bounded worker pool.
type Service struct {
	retriever       retriever
	engine          runner
	pool            *workpool.Pool
	classifier      classifier
	matcher         matcher
	synth           synthesizer
	corpus          corpusLoader
	topK            int
	contextPassages int
	batchSize       int
}

// Option configures a Service.
type Option func(*Service)

// WithClassifier tags chat questions with a domain before retrieval.
func WithClassifier(c classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithCaseMatching enables the virtual-judge flow.
func WithCaseMatching(m matcher, synth synthesizer, corpus corpusLoader, batchSize int) Option {
	return func(s *Service) {
		s.matcher = m
		s.synth = synth
		s.corpus = corpus
		s.batchSize = batchSize
	}
}

// WithTopK sets how many passages are retrieved per question.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithContextPassages sets how many retrieved passages enter the prompt.
func WithContextPassages(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.contextPassages = n
		}
	}
}

// New creates a Service.
func New(r retriever, engine runner, pool *workpool.Pool, opts ...Option) *Service {
	s := &Service{
		retriever:       r,
		engine:          engine,
		pool:            pool,
		topK:            DefaultTopK,
		contextPassages: retrieval.DefaultContextPassages,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Chat answers a legal question through the consultation descriptor.
func (s *Service) Chat(ctx context.Context, question string) (string, error) {
	return s.consult(ctx, pipeline.ConsultationDescriptor(), question, s.classifier != nil)
}

// Roadmap produces a step-by-step procedure plan for the question.
func (s *Service) Roadmap(ctx context.Context, question string) (string, error) {
	return s.consult(ctx, pipeline.RoadmapDescriptor(), question, false)
}

func (s *Service) consult(ctx context.Context, d pipeline.Descriptor, question string, classify bool) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}

	return workpool.Run(ctx, s.pool, func(ctx context.Context) (string, error) {
		log := logger.FromContext(ctx)
		in := pipeline.Input{Question: question}

		if classify {
			dom, err := s.classifier.Classify(ctx, question)
			if err != nil {
				log.Warn("question not classified", zap.Error(err))
			} else {
				in.Domain = dom
			}
		}

		passages, err := s.retriever.Search(ctx, question, s.topK)
		if err != nil {
			return "", err
		}
		if len(passages) == 0 {
			log.Info("no passages retrieved", zap.String("pipeline", d.Name()))
			return NoInformationAnswer, nil
		}
		in.Context = retrieval.BuildContext(passages, s.contextPassages)

		res, err := s.engine.Run(ctx, d, in)
		if err != nil {
			return "", err
		}
		if res.Degraded {
			log.Warn("answer recovered after stage failure", zap.String("pipeline", d.Name()))
		}
		return pipeline.Normalize(res), nil
	})
}

// Virtual predicts a judgment for a case description. userQuery is either a
// string or any JSON value, which is serialized with sorted keys. Only input
// errors are returned; every other failure is reported in VirtualResult.Error.
func (s *Service) Virtual(ctx context.Context, userQuery any) (VirtualResult, error) {
	desc, err := CaseDescription(userQuery)
	if err != nil {
		return VirtualResult{}, err
	}
	if s.matcher == nil || s.synth == nil || s.corpus == nil {
		return VirtualResult{Error: Apology(errors.New("case corpus is not configured"))}, nil
	}

	return workpool.Run(ctx, s.pool, func(ctx context.Context) (VirtualResult, error) {
		log := logger.FromContext(ctx)

		corpus, err := s.corpus.Load(ctx)
		if err != nil {
			log.Error("load case corpus", zap.Error(err))
			return VirtualResult{Error: Apology(fmt.Errorf("%w: %w", domain.ErrRetrievalFailure, err))}, nil
		}

		matches := s.matcher.FindMatches(ctx, desc, corpus, s.batchSize)
		if len(matches) == 0 {
			log.Info("no similar cases", zap.Int("corpus", len(corpus)))
			return VirtualResult{Error: NoMatchesMessage}, nil
		}

		judgment, err := s.synth.Synthesize(ctx, desc, matches, corpus)
		if err != nil {
			log.Warn("judgment synthesis failed", zap.Int("matches", len(matches)), zap.Error(err))
			return VirtualResult{Error: SynthesisFailedMessage}, nil
		}
		return VirtualResult{Judgment: &judgment}, nil
	})
}

// CaseDescription renders a virtual-judge payload as text. Strings pass
// through trimmed; other values become compact JSON with sorted object keys.
func CaseDescription(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: user_query is required", domain.ErrInvalidInput)
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return "", fmt.Errorf("%w: user_query is required", domain.ErrInvalidInput)
		}
		return t, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("%w: user_query is not serializable: %w", domain.ErrInvalidInput, err)
	}
	out := strings.TrimSpace(buf.String())
	if out == "{}" || out == "[]" {
		return "", fmt.Errorf("%w: user_query is empty", domain.ErrInvalidInput)
	}
	return out, nil
}

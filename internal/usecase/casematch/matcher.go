// Package casematch finds corpus cases similar to a query case by asking the
// model to compare the query against consecutive batches of case summaries.
package casematch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/jsonfence"
	"github.com/kailas-cloud/qanoneed/internal/logger"
	"github.com/kailas-cloud/qanoneed/internal/metrics"
	"github.com/kailas-cloud/qanoneed/internal/repository/caserecord"
)

// DefaultBatchSize is the number of cases sent per generation call.
const DefaultBatchSize = 100

// SystemPrompt instructs the model to return similar cases as a JSON array.
const SystemPrompt = `أنت مختص قانوني سعودي تبحث في قضايا قانونية سعودية.
سيتم تزويدك بقائمة قضايا تحتوي على case_id وملخص موجز لكل قضية.
سيقدم المستخدم تفاصيل قضية تخصه مهمتك ترجع قائمة بالقضايا المشابهة مع ذكر سبب التشابه.
صيغة الإخراج يجب أن تكون JSON فقط:
[{"case_id": 1, "PointOfSimilarity": "السبب"}]`

// Options tune the generation calls of the matcher.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	// Concurrency bounds parallel batches. Output order never depends on it.
	Concurrency int
}

// Matcher issues one generation call per batch.
type Matcher struct {
	gen  domain.Generator
	opts Options
}

// New creates a matcher.
func New(gen domain.Generator, opts Options) *Matcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Matcher{gen: gen, opts: opts}
}

// batchError is a failed batch. It is logged and counted, never returned.
type batchError struct {
	index int
	size  int
	err   error
}

func (e *batchError) Error() string {
	return fmt.Sprintf("batch %d (%d cases): %v", e.index, e.size, e.err)
}

func (e *batchError) Unwrap() error { return e.err }

// FindMatches returns candidates from every batch, concatenated in batch order.
// Failed batches contribute nothing. batchSize <= 0 means DefaultBatchSize.
func (m *Matcher) FindMatches(
	ctx context.Context, queryCase string, corpus []domain.CaseRecord, batchSize int,
) []domain.MatchCandidate {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batches := partition(corpus, batchSize)
	if len(batches) == 0 {
		return nil
	}

	log := logger.FromContext(ctx)
	results := make([][]domain.MatchCandidate, len(batches))

	g := &errgroup.Group{}
	g.SetLimit(m.opts.Concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			out, err := m.matchBatch(ctx, queryCase, batch)
			if err != nil {
				berr := &batchError{index: i, size: len(batch), err: err}
				log.Warn("case match batch failed",
					zap.Int("batch", i), zap.Int("batch_size", len(batch)), zap.Error(berr))
				metrics.CaseMatchBatchesTotal.WithLabelValues("error").Inc()
				return nil
			}
			metrics.CaseMatchBatchesTotal.WithLabelValues("ok").Inc()
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var all []domain.MatchCandidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (m *Matcher) matchBatch(
	ctx context.Context, queryCase string, batch []domain.CaseRecord,
) ([]domain.MatchCandidate, error) {
	input, err := BatchInput(queryCase, batch)
	if err != nil {
		return nil, err
	}

	req := domain.GenerationRequest{
		System:    SystemPrompt,
		Prompt:    input,
		Model:     m.opts.Model,
		MaxTokens: m.opts.MaxTokens,
	}
	if m.opts.Temperature > 0 {
		req.Temperature = domain.Temperature(m.opts.Temperature)
	}

	res, err := m.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return ParseCandidates(res.Text)
}

type batchCase struct {
	CaseID  string `json:"case_id"`
	Summary string `json:"summaryOfCase"`
}

// BatchInput renders the user message for one batch. Cases keep corpus order
// and duplicate IDs are sent as separate entries.
func BatchInput(queryCase string, batch []domain.CaseRecord) (string, error) {
	cases := make([]batchCase, len(batch))
	for i, c := range batch {
		cases[i] = batchCase{CaseID: c.CaseID, Summary: c.Summary}
	}
	data, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}

	var b strings.Builder
	b.WriteString("# القضايا المدخلة\n```json\n")
	b.Write(data)
	b.WriteString("\n```\n# القضية التي سنقارنها\n")
	b.WriteString(queryCase)
	b.WriteString("\n# قم بارجاع jsonصحيح فقط")
	return b.String(), nil
}

type rawCandidate struct {
	CaseID     json.RawMessage `json:"case_id"`
	Similarity string          `json:"PointOfSimilarity"`
	Alt        string          `json:"point_of_similarity"`
}

// ParseCandidates decodes a model answer: a bare array, or an object with a
// "matches" or "cases" array. Entries without a case_id are dropped.
func ParseCandidates(answer string) ([]domain.MatchCandidate, error) {
	var raw json.RawMessage
	if err := jsonfence.Decode(answer, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrParseFailure, err)
	}

	var list []rawCandidate
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Matches []rawCandidate `json:"matches"`
			Cases   []rawCandidate `json:"cases"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrParseFailure, err)
		}
		list = wrapped.Matches
		if list == nil {
			list = wrapped.Cases
		}
		if list == nil {
			return nil, fmt.Errorf("%w: no candidate array in answer", domain.ErrParseFailure)
		}
	}

	out := make([]domain.MatchCandidate, 0, len(list))
	for _, c := range list {
		id, ok := caserecord.ParseCaseID(c.CaseID)
		if !ok || id == "" {
			continue
		}
		sim := c.Similarity
		if sim == "" {
			sim = c.Alt
		}
		out = append(out, domain.MatchCandidate{CaseID: id, PointOfSimilarity: sim})
	}
	return out, nil
}

func partition(corpus []domain.CaseRecord, size int) [][]domain.CaseRecord {
	var out [][]domain.CaseRecord
	for start := 0; start < len(corpus); start += size {
		end := min(start+size, len(corpus))
		out = append(out, corpus[start:end])
	}
	return out
}

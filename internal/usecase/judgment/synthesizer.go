// Package judgment predicts a ruling for a query case from enriched similar cases.
package judgment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/jsonfence"
	"github.com/kailas-cloud/qanoneed/internal/repository/caserecord"
)

// Defaults applied when Options fields are zero.
const (
	DefaultMaxMatches   = 5
	DefaultSummaryChars = 300
	DefaultTemperature  = 0.5
	DefaultMaxTokens    = 2000
)

// MissingSummary is shown for matches whose case is not in the corpus.
const MissingSummary = "لا يوجد ملخص متاح"

// SystemPrompt instructs the model to return the ruling as JSON.
const SystemPrompt = `أنت مختص قانوني سعودي. سيتم تزويدك بقضية مع كامل تفاصيلها، بالإضافة إلى مجموعة قضايا مشابهة.
مهمتك هي تقديم حكم نهائي باللغة العربية لقضية المستخدم مع شرح قصير وادعم حكمك بدلائل من القضايا المشابهة.
الإخراج يجب أن يكون JSON فقط:
{
  "similar_cases": [{"case_id": 15, "summary": "نبذة قصيرة حول هذه القضية"}],
  "rationale": "اشرح شرحاً قصيراً كيف ساعدتك القضايا المتشابهة في إصدار الحكم",
  "predicted_judgment": "نص الحكم المتوقع لقضية المستخدم"
}`

// Options tune enrichment and the generation call.
type Options struct {
	MaxMatches   int
	SummaryChars int
	Model        string
	Temperature  float32
	MaxTokens    int
}

// Synthesizer issues one generation call per ruling.
type Synthesizer struct {
	gen  domain.Generator
	opts Options
}

// New creates a synthesizer.
func New(gen domain.Generator, opts Options) *Synthesizer {
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = DefaultMaxMatches
	}
	if opts.SummaryChars <= 0 {
		opts.SummaryChars = DefaultSummaryChars
	}
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Synthesizer{gen: gen, opts: opts}
}

// Synthesize predicts the judgment. Empty matches and unusable model output
// both fail with domain.ErrParseFailure.
func (s *Synthesizer) Synthesize(
	ctx context.Context, caseDescription string,
	matches []domain.MatchCandidate, corpus []domain.CaseRecord,
) (domain.JudgmentResult, error) {
	if len(matches) == 0 {
		return domain.JudgmentResult{}, fmt.Errorf("no similar cases: %w", domain.ErrParseFailure)
	}

	similar := s.Enrich(matches, caserecord.Index(corpus))
	input, err := Input(caseDescription, similar)
	if err != nil {
		return domain.JudgmentResult{}, err
	}

	res, err := s.gen.Generate(ctx, domain.GenerationRequest{
		System:      SystemPrompt,
		Prompt:      input,
		Model:       s.opts.Model,
		Temperature: domain.Temperature(s.opts.Temperature),
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return domain.JudgmentResult{}, fmt.Errorf("generate judgment: %w", err)
	}
	return Parse(res.Text)
}

// Enrich attaches corpus summaries to the top matches.
func (s *Synthesizer) Enrich(matches []domain.MatchCandidate, index map[string]domain.CaseRecord) []domain.SimilarCase {
	if len(matches) > s.opts.MaxMatches {
		matches = matches[:s.opts.MaxMatches]
	}
	out := make([]domain.SimilarCase, 0, len(matches))
	for _, m := range matches {
		summary := MissingSummary
		if rec, ok := index[m.CaseID]; ok && rec.Summary != "" {
			summary = truncateRunes(rec.Summary, s.opts.SummaryChars)
		}
		out = append(out, domain.SimilarCase{CaseID: m.CaseID, Summary: summary})
	}
	return out
}

// Input renders the user message for the ruling call. A description that is
// itself a JSON object or array is embedded as-is.
func Input(caseDescription string, similar []domain.SimilarCase) (string, error) {
	caseJSON, err := caseText(caseDescription)
	if err != nil {
		return "", err
	}
	similarJSON, err := json.MarshalIndent(similar, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal similar cases: %w", err)
	}
	return "# تفاصيل القضية:\n" + string(caseJSON) +
		"\n# القضايا المشابهة:\n" + string(similarJSON) +
		"\n# رجاءً أعد فقط JSON صحيح", nil
}

func caseText(desc string) ([]byte, error) {
	trimmed := strings.TrimSpace(desc)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(trimmed), "", "  "); err == nil {
			return buf.Bytes(), nil
		}
	}
	out, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal case: %w", err)
	}
	return out, nil
}

type wireResult struct {
	SimilarCases []struct {
		CaseID  json.RawMessage `json:"case_id"`
		Summary string          `json:"summary"`
	} `json:"similar_cases"`
	Rationale         *string `json:"rationale"`
	Source            *string `json:"Source"`
	PredictedJudgment string  `json:"predicted_judgment"`
}

// Parse decodes the model's ruling. "Source" is accepted for "rationale".
func Parse(answer string) (domain.JudgmentResult, error) {
	var w wireResult
	if err := jsonfence.Decode(answer, &w); err != nil {
		return domain.JudgmentResult{}, fmt.Errorf("%w: %w", domain.ErrParseFailure, err)
	}
	if w.SimilarCases == nil {
		return domain.JudgmentResult{}, fmt.Errorf("%w: similar_cases missing", domain.ErrParseFailure)
	}
	if w.Rationale == nil && w.Source == nil {
		return domain.JudgmentResult{}, fmt.Errorf("%w: rationale missing", domain.ErrParseFailure)
	}
	if strings.TrimSpace(w.PredictedJudgment) == "" {
		return domain.JudgmentResult{}, fmt.Errorf("%w: predicted_judgment empty", domain.ErrParseFailure)
	}

	out := domain.JudgmentResult{
		SimilarCases:      make([]domain.SimilarCase, 0, len(w.SimilarCases)),
		PredictedJudgment: strings.TrimSpace(w.PredictedJudgment),
	}
	if w.Rationale != nil {
		out.Rationale = *w.Rationale
	} else {
		out.Rationale = *w.Source
	}
	for _, c := range w.SimilarCases {
		id, _ := caserecord.ParseCaseID(c.CaseID)
		out.SimilarCases = append(out.SimilarCases, domain.SimilarCase{CaseID: id, Summary: c.Summary})
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

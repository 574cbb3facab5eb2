package consult

import (
	"context"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/usecase/pipeline"
)

// classifier tags a question with a legal domain.
type classifier interface {
	Classify(ctx context.Context, question string) (domain.Domain, error)
}

// retriever queries the passage store.
type retriever interface {
	Search(ctx context.Context, query string, k int) ([]domain.ScoredPassage, error)
}

// runner executes a stage descriptor.
type runner interface {
	Run(ctx context.Context, d pipeline.Descriptor, in pipeline.Input) (pipeline.Result, error)
}

// matcher finds similar corpus cases.
type matcher interface {
	FindMatches(ctx context.Context, queryCase string, corpus []domain.CaseRecord, batchSize int) []domain.MatchCandidate
}

// synthesizer predicts a judgment from enriched matches.
type synthesizer interface {
	Synthesize(ctx context.Context, caseDescription string, matches []domain.MatchCandidate, corpus []domain.CaseRecord) (domain.JudgmentResult, error)
}

// corpusLoader returns the case corpus.
type corpusLoader interface {
	Load(ctx context.Context) ([]domain.CaseRecord, error)
}

package domain

import "encoding/json"

// CaseRecord is one historical case from the judgment corpus.
// CaseID is always digit-normalized (see NormalizeDigits).
type CaseRecord struct {
	CaseID   string
	Summary  string
	FullCase json.RawMessage
}

// MatchCandidate is a provisional match between the query case and a corpus case.
type MatchCandidate struct {
	CaseID            string `json:"case_id"`
	PointOfSimilarity string `json:"point_of_similarity"`
}

// SimilarCase is an enriched match shown to the caller.
type SimilarCase struct {
	CaseID  string `json:"case_id"`
	Summary string `json:"summary"`
}

// JudgmentResult is the structured output of ruling prediction.
type JudgmentResult struct {
	SimilarCases      []SimilarCase `json:"similar_cases"`
	Rationale         string        `json:"rationale"`
	PredictedJudgment string        `json:"predicted_judgment"`
}

package sdk

import "time"

// SimilarCase is a historical case matched against the query case.
type SimilarCase struct {
	CaseID  string `json:"case_id"`
	Summary string `json:"summary"`
}

// JudgmentResult is the predicted ruling for a virtual court query.
type JudgmentResult struct {
	SimilarCases      []SimilarCase `json:"similar_cases"`
	Rationale         string        `json:"rationale"`
	PredictedJudgment string        `json:"predicted_judgment"`
}

// UsagePeriod is the aggregation window of a usage report.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// UsageReport is the generation token budget state for a period.
// TokensRemaining is -1 when the budget is unlimited.
type UsageReport struct {
	Period          UsagePeriod `json:"period"`
	PeriodStart     time.Time   `json:"period_start"`
	PeriodEnd       time.Time   `json:"period_end"`
	TokensUsed      int64       `json:"tokens_used"`
	TokensLimit     int64       `json:"tokens_limit"`
	TokensRemaining int64       `json:"tokens_remaining"`
	Exhausted       bool        `json:"exhausted"`
}

// ReadyStatus is the readiness report of the server.
type ReadyStatus struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Checks map[string]string `json:"checks"` // component -> "ok"/"error"/"empty"
}

// StreamEventError is the SSE event name used for failures.
const StreamEventError = "error"

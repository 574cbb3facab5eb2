package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a malformed or empty request value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRetrievalFailure signals that the passage store could not be loaded or queried.
	ErrRetrievalFailure = errors.New("retrieval failure")
	// ErrClassificationMiss signals that no domain label matched the classifier output.
	ErrClassificationMiss = errors.New("classification miss")
	// ErrStageFailure signals a failed pipeline stage.
	ErrStageFailure = errors.New("stage failure")
	// ErrParseFailure signals malformed structured output from a generation call.
	ErrParseFailure = errors.New("parse failure")
	// ErrGenerationProvider signals a generation provider failure.
	ErrGenerationProvider = errors.New("generation provider error")
	// ErrGenerationQuotaExceeded signals an exhausted generation token budget.
	ErrGenerationQuotaExceeded = errors.New("generation quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// StageError wraps ErrStageFailure with the role that failed.
type StageError struct {
	Role string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStageFailure.Error(), e.Role, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *StageError) Unwrap() []error { return []error{ErrStageFailure, e.Err} }

// NewStageError creates a stage failure for the given role.
func NewStageError(role string, err error) error {
	return &StageError{Role: role, Err: err}
}

// Retryable is implemented by provider errors that know whether a repeat may succeed.
type Retryable interface {
	Retryable() bool
}

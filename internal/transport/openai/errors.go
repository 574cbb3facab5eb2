package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// apiError is a provider failure wrapped with the caller's sentinel.
type apiError struct {
	msg    string
	status int
	wrap   error
}

func (e *apiError) Error() string { return e.msg + ": " + e.wrap.Error() }

func (e *apiError) Unwrap() error { return e.wrap }

// Retryable reports whether the call may succeed when repeated.
// Rate limits, server errors and transport failures are retryable.
func (e *apiError) Retryable() bool {
	return e.status == 0 || e.status == 429 || e.status >= 500
}

// parseAPIError extracts a human-readable message from an API failure and
// wraps it with the caller's sentinel so transports can map it.
func parseAPIError(kind string, err error, wrap error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := extractDetail(reqErr.Body)
		if body == "" {
			body = string(reqErr.Body)
		}
		return &apiError{
			msg:    fmt.Sprintf("%s API error %d: %s", kind, reqErr.HTTPStatusCode, body),
			status: reqErr.HTTPStatusCode,
			wrap:   wrap,
		}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apiError{
			msg:    fmt.Sprintf("%s API error %d: %s", kind, apiErr.HTTPStatusCode, apiErr.Message),
			status: apiErr.HTTPStatusCode,
			wrap:   wrap,
		}
	}

	return &apiError{msg: fmt.Sprintf("%s request failed: %v", kind, err), wrap: wrap}
}

// extractDetail reads the "detail" field some OpenAI-compatible gateways return.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

// statusOf returns the HTTP status carried by an API error, or 0.
func statusOf(err error) int {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	return 0
}

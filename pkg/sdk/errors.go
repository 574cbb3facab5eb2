package sdk

import (
	"errors"
	"fmt"
)

// ErrVirtualFailed is wrapped by VirtualError.
var ErrVirtualFailed = errors.New("virtual court failed")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("qanoneed: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("qanoneed: HTTP %d: %s", e.StatusCode, e.Detail)
}

// VirtualError is a 200 /virtual response carrying {result: {error}}.
type VirtualError struct {
	Message string
}

func (e *VirtualError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrVirtualFailed.
func (e *VirtualError) Unwrap() error { return ErrVirtualFailed }

// Package jsonfence extracts JSON payloads from model output that may be
// wrapped in markdown code fences or surrounded by prose.
package jsonfence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when no JSON value can be located in the input.
var ErrNoJSON = errors.New("no json payload found")

// Strip removes a leading ```lang fence line and a trailing ``` fence.
// Text without fences is returned trimmed.
func Strip(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "```"); start >= 0 {
		rest := s[start+3:]
		// drop the info string (```json)
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		} else {
			rest = strings.TrimPrefix(rest, "json")
		}
		if end := strings.LastIndex(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = rest
	}
	return strings.TrimSpace(s)
}

// Decode strips fences and unmarshals into v. When the stripped text is not
// valid JSON it retries on the outermost {...} or [...] span.
func Decode(s string, v any) error {
	body := Strip(s)
	if body == "" {
		return ErrNoJSON
	}
	err := json.Unmarshal([]byte(body), v)
	if err == nil {
		return nil
	}
	span, ok := outermost(body)
	if !ok {
		return fmt.Errorf("decode json: %w", err)
	}
	if err2 := json.Unmarshal([]byte(span), v); err2 != nil {
		return fmt.Errorf("decode json: %w", err2)
	}
	return nil
}

func outermost(s string) (string, bool) {
	open := strings.IndexAny(s, "{[")
	if open < 0 {
		return "", false
	}
	closer := byte('}')
	if s[open] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= open {
		return "", false
	}
	return s[open : end+1], true
}

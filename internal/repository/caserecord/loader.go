// Package caserecord loads the historical case corpus used by ruling prediction.
package caserecord

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/blob"
	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/lazy"
)

const maxLineBytes = 16 << 20

// Loader reads the corpus once per process and shares it between requests.
type Loader struct {
	src      blob.Source
	path     string
	maxItems int
	logger   *zap.Logger
	value    *lazy.Value[[]domain.CaseRecord]
}

// NewLoader creates a corpus loader. maxItems 0 means unlimited.
func NewLoader(src blob.Source, path string, maxItems int, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{src: src, path: path, maxItems: maxItems, logger: logger}
	l.value = lazy.New(l.read)
	return l
}

// Load returns the corpus, reading it on the first call.
func (l *Loader) Load(ctx context.Context) ([]domain.CaseRecord, error) {
	return l.value.Get(ctx)
}

// Loaded reports whether the corpus is in memory.
func (l *Loader) Loaded() bool { return l.value.Loaded() }

func (l *Loader) read(ctx context.Context) ([]domain.CaseRecord, error) {
	rc, err := l.src.Open(ctx, l.path)
	if err != nil {
		return nil, fmt.Errorf("open case corpus: %w", err)
	}
	defer rc.Close()

	records, skipped, err := Parse(rc, l.maxItems)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		l.logger.Warn("case corpus lines skipped", zap.String("path", l.path), zap.Int("skipped", skipped))
	}
	l.logger.Info("case corpus loaded", zap.String("path", l.path), zap.Int("records", len(records)))
	return records, nil
}

type line struct {
	CaseID  json.RawMessage `json:"case_id"`
	Summary json.RawMessage `json:"summaryOfCase"`
	Whole   json.RawMessage `json:"whole_case"`
}

// Parse reads JSONL case records. Malformed lines are counted and skipped.
func Parse(r io.Reader, maxItems int) ([]domain.CaseRecord, int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		out     []domain.CaseRecord
		skipped int
	)
	for sc.Scan() {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		rec, ok := parseLine(raw)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rec)
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scan case corpus: %w", err)
	}
	return out, skipped, nil
}

func parseLine(raw []byte) (domain.CaseRecord, bool) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return domain.CaseRecord{}, false
	}
	id, ok := ParseCaseID(l.CaseID)
	if !ok || id == "" {
		return domain.CaseRecord{}, false
	}
	full := l.Whole
	if len(full) > 0 {
		// the scanner reuses its buffer
		full = append(json.RawMessage(nil), full...)
	}
	return domain.CaseRecord{CaseID: id, Summary: parseSummary(l.Summary), FullCase: full}, true
}

// ParseCaseID accepts a JSON string or number and returns the normalized ID.
func ParseCaseID(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.NormalizeDigits(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		return n.String(), true
	}
	return "", false
}

func parseSummary(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Summary json.RawMessage `json:"summary"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj.Summary) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(obj.Summary, &list); err == nil {
		if len(list) > 0 {
			return list[0]
		}
		return ""
	}
	if err := json.Unmarshal(obj.Summary, &s); err == nil {
		return s
	}
	return ""
}

// Index maps case IDs to records. Later duplicates do not replace earlier ones.
func Index(records []domain.CaseRecord) map[string]domain.CaseRecord {
	m := make(map[string]domain.CaseRecord, len(records))
	for _, r := range records {
		if _, ok := m[r.CaseID]; !ok {
			m[r.CaseID] = r
		}
	}
	return m
}

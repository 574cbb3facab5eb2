// Package flatindex is the default passage backend: a JSONL file of
// {content, metadata, embedding} lines held in memory and searched by
// brute-force cosine similarity.
package flatindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/kailas-cloud/qanoneed/internal/blob"
	"github.com/kailas-cloud/qanoneed/internal/domain"
)

// maxLineBytes bounds a single JSONL line (a long article plus a 3072-dim vector fits easily).
const maxLineBytes = 16 << 20

type entry struct {
	chunk domain.PassageChunk
	vec   []float32
	norm  float64
}

// Index is an immutable in-memory passage index. Safe for concurrent Search.
type Index struct {
	entries []entry
	dim     int
}

// Load reads the index at path through src.
func Load(ctx context.Context, src blob.Source, path string) (*Index, error) {
	rc, err := src.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open flat index: %w", err)
	}
	defer rc.Close()

	return Read(rc)
}

// Read parses a JSONL index. All vectors must share one dimension.
func Read(r io.Reader) (*Index, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	idx := &Index{}
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var p domain.IndexedPassage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("flat index line %d: %w", line, err)
		}
		if len(p.Embedding) == 0 {
			return nil, fmt.Errorf("flat index line %d: missing embedding", line)
		}
		if idx.dim == 0 {
			idx.dim = len(p.Embedding)
		} else if len(p.Embedding) != idx.dim {
			return nil, fmt.Errorf("flat index line %d: dimension %d, want %d", line, len(p.Embedding), idx.dim)
		}

		idx.entries = append(idx.entries, entry{
			chunk: p.Chunk(),
			vec:   p.Embedding,
			norm:  norm(p.Embedding),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan flat index: %w", err)
	}
	return idx, nil
}

// Search returns up to k passages by descending cosine similarity.
// Ties keep file order.
func (x *Index) Search(_ context.Context, vec []float32, k int) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}
	if len(x.entries) == 0 {
		return nil, nil
	}
	if len(vec) != x.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(vec), x.dim)
	}

	qn := norm(vec)
	hits := make([]domain.ScoredPassage, len(x.entries))
	for i := range x.entries {
		e := &x.entries[i]
		hits[i] = domain.ScoredPassage{Chunk: e.chunk, Score: cosine(vec, qn, e.vec, e.norm)}
	}

	slices.SortStableFunc(hits, func(a, b domain.ScoredPassage) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of passages.
func (x *Index) Count(context.Context) (int, error) { return len(x.entries), nil }

// Dim returns the vector dimension, 0 for an empty index.
func (x *Index) Dim() int { return x.dim }

// Write encodes passages as index JSONL.
func Write(w io.Writer, passages []domain.IndexedPassage) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i := range passages {
		if err := enc.Encode(&passages[i]); err != nil {
			return fmt.Errorf("encode passage %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush flat index: %w", err)
	}
	return nil
}

func norm(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return math.Sqrt(s)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

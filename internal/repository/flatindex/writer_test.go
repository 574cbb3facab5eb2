package flatindex

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/kailas-cloud/qanoneed/internal/domain"
)

type memSink struct {
	path string
	data []byte
	err  error
}

func (s *memSink) Put(_ context.Context, path string, body io.Reader) error {
	if s.err != nil {
		return s.err
	}
	s.path = path
	b, err := io.ReadAll(body)
	s.data = b
	return err
}

func TestWriter_RoundTrip(t *testing.T) {
	sink := &memSink{}
	w := NewWriter(sink, "s3://laws/index.jsonl")
	ctx := context.Background()

	if err := w.EnsureIndex(ctx, 2); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	err := w.Upsert(ctx, []domain.IndexedPassage{
		{ID: "a", Content: "المادة الأولى", Embedding: []float32{1, 0}},
		{ID: "b", Content: "المادة الثانية", Embedding: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sink.path != "s3://laws/index.jsonl" {
		t.Errorf("unexpected path %q", sink.path)
	}

	idx, err := Read(bytes.NewReader(sink.data))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 2 || idx.Dim() != 2 {
		t.Errorf("expected 2 passages of dim 2, got %d of dim %d", n, idx.Dim())
	}
}

func TestWriter_DimensionMismatch(t *testing.T) {
	w := NewWriter(&memSink{}, "x")
	_ = w.EnsureIndex(context.Background(), 3)
	err := w.Upsert(context.Background(), []domain.IndexedPassage{{ID: "a", Embedding: []float32{1}}})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if w.Len() != 0 {
		t.Errorf("rejected batch must not be buffered")
	}
}

func TestWriter_SinkError(t *testing.T) {
	boom := errors.New("denied")
	w := NewWriter(&memSink{err: boom}, "x")
	if err := w.Flush(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

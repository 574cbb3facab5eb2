package flatindex

import (
	"bytes"
	"context"
	"fmt"

	"github.com/kailas-cloud/qanoneed/internal/blob"
	"github.com/kailas-cloud/qanoneed/internal/domain"
)

// Writer buffers passages and writes them as one index file on Flush.
type Writer struct {
	sink     blob.Sink
	path     string
	dim      int
	passages []domain.IndexedPassage
}

// NewWriter creates a writer targeting path on sink.
func NewWriter(sink blob.Sink, path string) *Writer {
	return &Writer{sink: sink, path: path}
}

// EnsureIndex fixes the vector dimension.
func (w *Writer) EnsureIndex(_ context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	w.dim = dim
	return nil
}

// Upsert buffers passages. Every vector must match the index dimension.
func (w *Writer) Upsert(_ context.Context, passages []domain.IndexedPassage) error {
	for i := range passages {
		if w.dim != 0 && len(passages[i].Embedding) != w.dim {
			return fmt.Errorf("%w: passage %s has dimension %d, want %d",
				domain.ErrInvalidInput, passages[i].ID, len(passages[i].Embedding), w.dim)
		}
	}
	w.passages = append(w.passages, passages...)
	return nil
}

// Flush encodes everything buffered and writes the file.
func (w *Writer) Flush(ctx context.Context) error {
	var buf bytes.Buffer
	if err := Write(&buf, w.passages); err != nil {
		return err
	}
	if err := w.sink.Put(ctx, w.path, &buf); err != nil {
		return fmt.Errorf("write flat index %s: %w", w.path, err)
	}
	return nil
}

// Len returns the number of buffered passages.
func (w *Writer) Len() int { return len(w.passages) }

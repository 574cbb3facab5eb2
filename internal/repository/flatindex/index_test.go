package flatindex

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kailas-cloud/qanoneed/internal/domain"
)

func sample() []domain.IndexedPassage {
	return []domain.IndexedPassage{
		{Content: "المادة 75 من نظام العمل", Metadata: domain.PassageMetadata{LawName: "نظام العمل"}, Embedding: []float32{1, 0, 0}},
		{Content: "المادة 3 من النظام الجزائي", Metadata: domain.PassageMetadata{LawName: "النظام الجزائي"}, Embedding: []float32{0, 1, 0}},
		{Content: "المادة 80 من نظام العمل", Metadata: domain.PassageMetadata{LawName: "نظام العمل"}, Embedding: []float32{0.8, 0.2, 0}},
		{Content: "نسخة مكررة", Metadata: domain.PassageMetadata{LawName: "نظام العمل"}, Embedding: []float32{1, 0, 0}},
	}
}

func build(t *testing.T) *Index {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, sample()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	idx, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return idx
}

func TestSearch_OrderAndLimit(t *testing.T) {
	idx := build(t)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("scores not non-increasing at %d: %v > %v", i, hits[i].Score, hits[i-1].Score)
		}
	}

	got := []string{hits[0].Chunk.Content, hits[1].Chunk.Content, hits[2].Chunk.Content}
	want := []string{"المادة 75 من نظام العمل", "نسخة مكررة", "المادة 80 من نظام العمل"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hit order mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch_KLargerThanIndex(t *testing.T) {
	hits, err := build(t).Search(context.Background(), []float32{0, 1, 0}, 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 4 {
		t.Errorf("expected all 4 passages, got %d", len(hits))
	}
	if hits[0].Chunk.Metadata.LawName != "النظام الجزائي" {
		t.Errorf("unexpected top hit %+v", hits[0].Chunk)
	}
}

func TestSearch_Errors(t *testing.T) {
	idx := build(t)
	if _, err := idx.Search(context.Background(), []float32{1, 0}, 3); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if _, err := idx.Search(context.Background(), []float32{1, 0, 0}, 0); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx, err := Read(strings.NewReader("\n\n"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	hits, err := idx.Search(context.Background(), []float32{1}, 5)
	if err != nil || hits != nil {
		t.Fatalf("expected nil, nil for empty index, got %v, %v", hits, err)
	}
}

func TestRead_SkipsBlankAndCRLFLines(t *testing.T) {
	in := `{"content":"a","embedding":[1,0]}` + "\r\n" +
		"   \t\r\n" +
		"\r\n" +
		`  {"content":"b","embedding":[0,1]}  ` + "\n"
	idx, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	n, _ := idx.Count(context.Background())
	if n != 2 || idx.Dim() != 2 {
		t.Errorf("count=%d dim=%d, want 2/2", n, idx.Dim())
	}
}

func TestRead_Rejects(t *testing.T) {
	tests := map[string]string{
		"malformed":       `{"content":`,
		"no embedding":    `{"content":"x","metadata":{}}`,
		"mixed dimension": `{"content":"a","embedding":[1,2]}` + "\n" + `{"content":"b","embedding":[1]}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(in)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWrite_KeepsArabicUnescaped(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sample()[:1]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "نظام العمل") {
		t.Errorf("expected raw UTF-8 in output, got %s", buf.String())
	}
	if n, _ := build(t).Count(context.Background()); n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	if got := cosine([]float32{0, 0}, 0, []float32{1, 0}, 1); got != 0 {
		t.Errorf("cosine with zero vector = %v, want 0", got)
	}
}

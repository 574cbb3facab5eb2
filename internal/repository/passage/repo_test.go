package passage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kailas-cloud/qanoneed/internal/db"
	"github.com/kailas-cloud/qanoneed/internal/db/postgres"
	"github.com/kailas-cloud/qanoneed/internal/domain"
)

func laborPassage() domain.IndexedPassage {
	return domain.IndexedPassage{
		ID:      "labor-75-0",
		Content: "يجب على الطرف الذي يرغب في إنهاء العقد إشعار الطرف الآخر كتابة",
		Metadata: domain.PassageMetadata{
			SourceID:     "labor",
			Title:        "المادة الخامسة والسبعون",
			LocatorURL:   "https://laws.boe.gov.sa/labor#75",
			LawName:      "نظام العمل",
			ArticleTitle: "المادة الخامسة والسبعون",
		},
		Embedding: []float32{0.1, 0.2, 0.3},
	}
}

func TestRedisRepo_EnsureIndex_Creates(t *testing.T) {
	var created *db.IndexDefinition
	ms := &mockRedis{
		createIndexFn: func(_ context.Context, def *db.IndexDefinition) error {
			created = def
			return nil
		},
	}
	if err := NewRedis(ms, "qanoneed:passages").EnsureIndex(context.Background(), 1536); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected CreateIndex call")
	}
	if created.Name != "qanoneed:passages" || created.Prefix != "qanoneed:passage:" {
		t.Errorf("unexpected definition: %+v", created)
	}
	vec := created.Fields[len(created.Fields)-1]
	if vec.Alias != "vector" || vec.Type != db.IndexFieldVector || vec.VectorDim != 1536 || vec.VectorM != 16 {
		t.Errorf("unexpected vector field: %+v", vec)
	}
}

func TestRedisRepo_EnsureIndex_ExistingIsNoop(t *testing.T) {
	ms := &mockRedis{
		indexExistsFn: func(context.Context, string) (bool, error) { return true, nil },
		createIndexFn: func(context.Context, *db.IndexDefinition) error {
			t.Fatal("CreateIndex must not be called")
			return nil
		},
	}
	if err := NewRedis(ms, "idx").EnsureIndex(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedisRepo_EnsureIndex_RaceIsTolerated(t *testing.T) {
	ms := &mockRedis{
		createIndexFn: func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists },
	}
	if err := NewRedis(ms, "idx").EnsureIndex(context.Background(), 3); err != nil {
		t.Fatalf("ErrIndexExists must be tolerated, got %v", err)
	}
}

func TestRedisRepo_Upsert(t *testing.T) {
	var items []db.JSONSetItem
	ms := &mockRedis{
		jsonSetMultiFn: func(_ context.Context, in []db.JSONSetItem) error {
			items = in
			return nil
		},
	}
	if err := NewRedis(ms, "idx").Upsert(context.Background(), []domain.IndexedPassage{laborPassage()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Key != "qanoneed:passage:labor-75-0" || items[0].Path != "$" {
		t.Fatalf("unexpected items: %+v", items)
	}
	var doc jsonDoc
	if err := json.Unmarshal(items[0].Data, &doc); err != nil {
		t.Fatalf("stored doc is not JSON: %v", err)
	}
	if doc.IsAmendment != "false" || doc.LawName != "نظام العمل" || len(doc.Embedding) != 3 {
		t.Errorf("unexpected doc: %+v", doc)
	}
}

func TestRedisRepo_Upsert_RequiresID(t *testing.T) {
	p := laborPassage()
	p.ID = ""
	err := NewRedis(&mockRedis{}, "idx").Upsert(context.Background(), []domain.IndexedPassage{p})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRedisRepo_Search(t *testing.T) {
	ms := &mockRedis{
		searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
			if q.IndexName != "qanoneed:passages" || q.K != 5 || len(q.ReturnFields) != len(returnFields) {
				t.Errorf("unexpected query: %+v", q)
			}
			return &db.SearchResult{Total: 1, Entries: []db.SearchEntry{{
				Key:   "qanoneed:passage:labor-75-0",
				Score: 0.93,
				Fields: map[string]string{
					"content":      "نص المادة",
					"law_name":     "نظام العمل",
					"is_amendment": "true",
				},
			}}}, nil
		},
	}

	hits, err := NewRedis(ms, "qanoneed:passages").Search(context.Background(), []float32{1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	h := hits[0]
	if h.Score != 0.93 || h.Chunk.Content != "نص المادة" || !h.Chunk.Metadata.IsAmendment {
		t.Errorf("unexpected hit: %+v", h)
	}
	if h.Chunk.Metadata.SourceID != "labor-75-0" {
		t.Errorf("source id should fall back to key suffix, got %q", h.Chunk.Metadata.SourceID)
	}
}

func TestRedisRepo_Search_Error(t *testing.T) {
	ms := &mockRedis{
		searchKNNFn: func(context.Context, *db.KNNQuery) (*db.SearchResult, error) { return nil, db.ErrIndexNotFound },
	}
	_, err := NewRedis(ms, "idx").Search(context.Background(), []float32{1}, 5)
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestPostgresRepo_RoundTrip(t *testing.T) {
	ms := &mockPG{}
	repo := NewPostgres(ms)
	ctx := context.Background()

	if err := repo.EnsureIndex(ctx, 1536); err != nil || ms.ensureDim != 1536 {
		t.Fatalf("EnsureIndex: %v (dim=%d)", err, ms.ensureDim)
	}
	if err := repo.Upsert(ctx, []domain.IndexedPassage{laborPassage()}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(ms.upserted) != 1 || ms.upserted[0].ID != "labor-75-0" {
		t.Fatalf("unexpected rows: %+v", ms.upserted)
	}

	ms.rows = []postgres.Row{{ID: "labor-75-0", Content: "نص", Metadata: ms.upserted[0].Metadata, Distance: 0.25}}
	hits, err := repo.Search(ctx, []float32{1}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Score != 0.75 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Chunk.Metadata.LawName != "نظام العمل" {
		t.Errorf("metadata not decoded: %+v", hits[0].Chunk.Metadata)
	}
}

func TestPostgresRepo_BadMetadata(t *testing.T) {
	ms := &mockPG{rows: []postgres.Row{{ID: "x", Metadata: []byte("{")}}}
	if _, err := NewPostgres(ms).Search(context.Background(), []float32{1}, 1); err == nil {
		t.Fatal("expected decode error")
	}
}

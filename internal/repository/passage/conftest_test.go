package passage

import (
	"context"

	"github.com/kailas-cloud/qanoneed/internal/db"
	"github.com/kailas-cloud/qanoneed/internal/db/postgres"
)

type mockRedis struct {
	jsonSetMultiFn func(ctx context.Context, items []db.JSONSetItem) error
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
	searchKNNFn    func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchCountFn  func(ctx context.Context, index, query string) (int, error)
}

func (m *mockRedis) JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error {
	if m.jsonSetMultiFn != nil {
		return m.jsonSetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockRedis) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockRedis) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockRedis) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockRedis) SearchCount(ctx context.Context, index, query string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index, query)
	}
	return 0, nil
}

type mockPG struct {
	ensureDim int
	upserted  []postgres.Row
	rows      []postgres.Row
	err       error
}

func (m *mockPG) EnsureSchema(_ context.Context, dim int) error {
	m.ensureDim = dim
	return m.err
}

func (m *mockPG) Upsert(_ context.Context, rows []postgres.Row) error {
	m.upserted = append(m.upserted, rows...)
	return m.err
}

func (m *mockPG) Search(_ context.Context, _ []float32, _ int) ([]postgres.Row, error) {
	return m.rows, m.err
}

func (m *mockPG) Count(context.Context) (int, error) { return len(m.rows), m.err }

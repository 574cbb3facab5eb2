// Package passage adapts the Redis and Postgres stores to the passage backend
// contract used by usecase/retrieval and usecase/indexing.
package passage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/qanoneed/internal/db"
	"github.com/kailas-cloud/qanoneed/internal/domain"
)

// HNSW defaults for the passage vector field.
const (
	hnswM           = 16
	hnswEFConstruct = 200
)

var keyPrefix = domain.KeyPrefix + "passage:"

var returnFields = []string{
	"content", "source_id", "title", "locator_url",
	"is_amendment", "law_name", "article_title", "part",
}

// redisStore is the consumer interface for the Redis passage index (ISP).
type redisStore interface {
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// RedisRepo stores passages as JSON documents under one FT index.
type RedisRepo struct {
	store     redisStore
	indexName string
}

// NewRedis creates a Redis passage repository over indexName.
func NewRedis(s redisStore, indexName string) *RedisRepo {
	return &RedisRepo{store: s, indexName: indexName}
}

// jsonDoc is the stored document. is_amendment is a string so it can be a TAG.
type jsonDoc struct {
	Content      string    `json:"content"`
	SourceID     string    `json:"source_id"`
	Title        string    `json:"title"`
	LocatorURL   string    `json:"locator_url"`
	IsAmendment  string    `json:"is_amendment"`
	LawName      string    `json:"law_name"`
	ArticleTitle string    `json:"article_title"`
	Part         string    `json:"part"`
	Embedding    []float32 `json:"embedding"`
}

// EnsureIndex creates the FT index for vectors of dim when it does not exist.
func (r *RedisRepo) EnsureIndex(ctx context.Context, dim int) error {
	exists, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.indexName, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(r.indexName, dim)
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.indexName, err)
	}
	return nil
}

func buildIndex(name string, dim int) (*db.IndexDefinition, error) {
	def, err := db.NewIndex(name, keyPrefix).
		Text("$.content", "content").
		Tag("$.source_id", "source_id").
		Tag("$.law_name", "law_name").
		Tag("$.is_amendment", "is_amendment").
		Vector("$.embedding", "vector", dim, hnswM, hnswEFConstruct).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build passage index: %w", err)
	}
	return def, nil
}

// Upsert writes passages in one pipelined round-trip. Passages without an ID are rejected.
func (r *RedisRepo) Upsert(ctx context.Context, passages []domain.IndexedPassage) error {
	items := make([]db.JSONSetItem, 0, len(passages))
	for i := range passages {
		p := &passages[i]
		if p.ID == "" {
			return fmt.Errorf("passage %d: id is required: %w", i, domain.ErrInvalidInput)
		}
		data, err := json.Marshal(toDoc(p))
		if err != nil {
			return fmt.Errorf("marshal passage %s: %w", p.ID, err)
		}
		items = append(items, db.JSONSetItem{Key: keyPrefix + p.ID, Path: "$", Data: data})
	}
	if err := r.store.JSONSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write passages: %w", err)
	}
	return nil
}

// Search runs KNN over the passage index.
func (r *RedisRepo) Search(ctx context.Context, vec []float32, k int) ([]domain.ScoredPassage, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName,
		Vector:       vec,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.indexName, err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	out := make([]domain.ScoredPassage, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		out = append(out, domain.ScoredPassage{Chunk: fromFields(e.Key, e.Fields), Score: e.Score})
	}
	return out, nil
}

// Count returns the number of indexed passages.
func (r *RedisRepo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName, "*")
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.indexName, err)
	}
	return n, nil
}

func toDoc(p *domain.IndexedPassage) jsonDoc {
	return jsonDoc{
		Content:      p.Content,
		SourceID:     p.Metadata.SourceID,
		Title:        p.Metadata.Title,
		LocatorURL:   p.Metadata.LocatorURL,
		IsAmendment:  strconv.FormatBool(p.Metadata.IsAmendment),
		LawName:      p.Metadata.LawName,
		ArticleTitle: p.Metadata.ArticleTitle,
		Part:         p.Metadata.Part,
		Embedding:    p.Embedding,
	}
}

func fromFields(key string, f map[string]string) domain.PassageChunk {
	sourceID := f["source_id"]
	if sourceID == "" {
		sourceID = strings.TrimPrefix(key, keyPrefix)
	}
	amend, _ := strconv.ParseBool(f["is_amendment"])
	return domain.PassageChunk{
		Content: f["content"],
		Metadata: domain.PassageMetadata{
			SourceID:     sourceID,
			Title:        f["title"],
			LocatorURL:   f["locator_url"],
			IsAmendment:  amend,
			LawName:      f["law_name"],
			ArticleTitle: f["article_title"],
			Part:         f["part"],
		},
	}
}

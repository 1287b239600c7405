package vectorstore

import (
	"context"
	"fmt"
	"time"

	"ai-docs-helper/pkg/embedding"
	"ai-docs-helper/pkg/store"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// DocumentEmbedding is the persisted chunk row. Ingestion (loading and
// chunking the corpus) happens offline; the query path only reads.
type DocumentEmbedding struct {
	Id             string          `gorm:"column:id;primaryKey"`
	Source         string          `gorm:"column:source"`
	Content        string          `gorm:"column:content"`
	EmbeddingValue pgvector.Vector `gorm:"column:embedding_value;type:vector(768)"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

func (DocumentEmbedding) TableName() string {
	return "document_embeddings"
}

// PgVectorStore implements VectorStore on top of Postgres + pgvector.
type PgVectorStore struct {
	db                *gorm.DB
	embeddingProvider embedding.EmbeddingProvider
}

var _ VectorStore = &PgVectorStore{}

func NewPgVectorStore(db *gorm.DB, embeddingProvider embedding.EmbeddingProvider) *PgVectorStore {
	return &PgVectorStore{
		db:                db,
		embeddingProvider: embeddingProvider,
	}
}

func (s *PgVectorStore) SimilaritySearch(ctx context.Context, query string, k, fetchK int) ([]store.Document, error) {
	if k <= 0 {
		k = 5
	}
	if fetchK < k {
		fetchK = k
	}

	embeddingRes, err := s.embeddingProvider.Generate(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	// Cosine distance in pgvector is 1 - cosine_similarity, so
	// 1 - (embedding_value <=> query_vector) = cosine_similarity.
	type result struct {
		DocumentEmbedding
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embeddingRes.Embedding.Values)

	err = s.db.WithContext(ctx).
		Table("document_embeddings").
		Select("document_embeddings.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Order("similarity DESC").
		Limit(fetchK).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	if len(results) > k {
		results = results[:k]
	}

	documents := make([]store.Document, len(results))
	for i, res := range results {
		documents[i] = store.Document{
			ID:      res.Id,
			Source:  res.Source,
			Content: res.Content,
			Score:   res.Similarity,
		}
	}
	return documents, nil
}

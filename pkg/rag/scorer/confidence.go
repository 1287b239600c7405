package scorer

import (
	"context"
	"crypto/md5"
	"fmt"
	"log"
	"math"
	"time"

	"ai-docs-helper/pkg/embedding"

	gocache "github.com/patrickmn/go-cache"
)

// NeutralConfidence is returned when scoring degrades. The scorer is an
// advisory pre-filter; its failure must never block retrieval.
const NeutralConfidence = 0.5

// Scorer assigns a relevance confidence to a (question, document) pair
// using embedding cosine similarity. It is deliberately cheap relative to
// the LLM-based grader so it can run on every candidate.
type Scorer struct {
	embeddingProvider embedding.EmbeddingProvider
	memo              *gocache.Cache
	logger            *log.Logger
}

func NewScorer(embeddingProvider embedding.EmbeddingProvider, logger *log.Logger) *Scorer {
	// Embeddings for repeated texts (the question across candidates, shared
	// chunks across variants) are memoized for an hour.
	memo := gocache.New(1*time.Hour, 10*time.Minute)
	return &Scorer{
		embeddingProvider: embeddingProvider,
		memo:              memo,
		logger:            logger,
	}
}

// Score returns a confidence in [0,1] and a short rationale. It has no
// cross-call state beyond the embedding memo and never returns an error:
// failures degrade to NeutralConfidence.
func (s *Scorer) Score(ctx context.Context, question, document string) (float64, string) {
	queryVec, err := s.embed(ctx, question)
	if err != nil {
		s.logger.Printf("[SCORER] Question embedding failed: %v", err)
		return NeutralConfidence, "scoring degraded: question embedding unavailable"
	}

	docVec, err := s.embed(ctx, document)
	if err != nil {
		s.logger.Printf("[SCORER] Document embedding failed: %v", err)
		return NeutralConfidence, "scoring degraded: document embedding unavailable"
	}

	similarity := CosineSimilarity(queryVec, docVec)
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}

	return similarity, fmt.Sprintf("embedding similarity %.3f", similarity)
}

func (s *Scorer) embed(ctx context.Context, text string) ([]float32, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(text)))
	if cached, found := s.memo.Get(key); found {
		return cached.([]float32), nil
	}

	res, err := s.embeddingProvider.Generate(ctx, text, "SEMANTIC_SIMILARITY")
	if err != nil {
		return nil, err
	}

	values := res.Embedding.Values
	s.memo.Set(key, values, gocache.DefaultExpiration)
	return values, nil
}

// CosineSimilarity computes the cosine of two vectors. Mismatched or empty
// vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

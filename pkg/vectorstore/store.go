package vectorstore

import (
	"context"

	"ai-docs-helper/pkg/store"
)

// VectorStore is the similarity-search boundary of the pipeline. Failures
// are transient I/O errors; callers apply their own fallback policy.
type VectorStore interface {
	// SimilaritySearch embeds the query text, fetches up to fetchK nearest
	// chunks and returns at most k of them, best first.
	SimilaritySearch(ctx context.Context, query string, k, fetchK int) ([]store.Document, error)
}

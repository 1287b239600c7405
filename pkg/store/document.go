package store

// Document represents a single retrieved chunk flowing through the RAG
// pipeline. It is request-scoped: created by a vector store query, enriched
// in place by the scorer and grader, and discarded when the request ends.
type Document struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`      // raw vector similarity from the store
	Confidence float64 `json:"confidence"` // assigned by scorer/grader, 0 until scored
	Relevant   bool    `json:"relevant"`   // assigned by the grader
}

// SourceRef is the citation form of a document kept in the final answer.
type SourceRef struct {
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Answer is the cached/served result of one pipeline run.
type Answer struct {
	Question   string      `json:"question"`
	Generation string      `json:"generation"`
	Confidence float64     `json:"confidence"`
	Sources    []SourceRef `json:"sources"`
	FromCache  bool        `json:"from_cache"`
	CachedAt   string      `json:"cached_at,omitempty"`
	CacheKey   string      `json:"cache_key,omitempty"`
	ErrorLog   []string    `json:"error_log,omitempty"`
}

// Retrieval strategies. Fast uses a small k and no query expansion,
// comprehensive expands the question into variants and searches each one.
const (
	StrategyFast          = "fast"
	StrategyStandard      = "standard"
	StrategyComprehensive = "comprehensive"
)

package search

import "ai-docs-helper/pkg/store"

// State enumerates the retrieval state machine. One retrieval attempt runs
// SelectStrategy through Filter; Retry loops back to SelectStrategy with a
// paraphrased question, Fallback is the terminal degraded state.
type State int

const (
	StateSelectStrategy State = iota
	StateQueryStore
	StateMerge
	StateScore
	StateEarlyStopCheck
	StateGrade
	StateFilter
	StateRetry
	StateFallback
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSelectStrategy:
		return "select_strategy"
	case StateQueryStore:
		return "query_store"
	case StateMerge:
		return "merge"
	case StateScore:
		return "score"
	case StateEarlyStopCheck:
		return "early_stop_check"
	case StateGrade:
		return "grade"
	case StateFilter:
		return "filter"
	case StateRetry:
		return "retry"
	case StateFallback:
		return "fallback"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Result carries the full request-scoped retrieval state. It replaces the
// loosely-typed state dictionary style of workflow engines with named
// fields owned by exactly one request.
type Result struct {
	Question         string           // current (possibly paraphrased) question
	OriginalQuestion string           // never overwritten across retries
	Strategy         string           // strategy used by the last attempt
	RetryCount       int              // monotonically non-decreasing, bounded
	QueryVariations  []string         // populated by the comprehensive path
	Candidates       []store.Document // merged, deduplicated, scored
	Documents        []store.Document // relevance-filtered survivors
	Confidence       float64          // mean confidence of survivors, 0 if none
	ErrorLog         []string         // accumulated stage failures
	EarlyStopped     bool
	Fallback         bool
}

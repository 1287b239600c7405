package search

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"ai-docs-helper/pkg/monitoring"
	"ai-docs-helper/pkg/rag/grader"
	"ai-docs-helper/pkg/store"
	"ai-docs-helper/pkg/vectorstore"
)

// ConfidenceScorer is the cheap pre-grading relevance heuristic.
type ConfidenceScorer interface {
	Score(ctx context.Context, question, document string) (float64, string)
}

// RelevanceGrader grades candidates in aggregated batches.
type RelevanceGrader interface {
	Grade(ctx context.Context, question string, documents []store.Document) []grader.DocumentRelevance
}

// QueryExpander produces question variants for the comprehensive strategy.
type QueryExpander interface {
	Expand(ctx context.Context, question string) []string
}

// Paraphraser rewrites the question between retry cycles.
type Paraphraser interface {
	Paraphrase(ctx context.Context, question string) string
}

// StrategyParams controls result-set size for one strategy.
type StrategyParams struct {
	K      int
	FetchK int
}

// Config encapsulates retrieval parameters.
type Config struct {
	DefaultStrategy      string
	Strategies           map[string]StrategyParams
	MaxRetries           int
	MaxWorkers           int
	QueryTimeout         time.Duration
	EarlyStoppingEnabled bool
	MinRelevantDocs      int
	ConfidenceThreshold  float64
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{
		DefaultStrategy: store.StrategyStandard,
		Strategies: map[string]StrategyParams{
			store.StrategyFast:          {K: 5, FetchK: 15},
			store.StrategyStandard:      {K: 10, FetchK: 20},
			store.StrategyComprehensive: {K: 15, FetchK: 40},
		},
		MaxRetries:           2,
		MaxWorkers:           5,
		QueryTimeout:         15 * time.Second,
		EarlyStoppingEnabled: true,
		MinRelevantDocs:      2,
		ConfidenceThreshold:  0.8,
	}
}

// Orchestrator drives one retrieval request through the state machine:
// strategy selection, vector store queries (parallel for comprehensive),
// merge/dedup, confidence scoring, early stopping, batch grading,
// filtering, and the bounded paraphrase-retry loop.
type Orchestrator struct {
	vectorStore vectorstore.VectorStore
	scorer      ConfidenceScorer
	grader      RelevanceGrader
	expander    QueryExpander
	paraphraser Paraphraser
	monitor     *monitoring.PerformanceMonitor
	cfg         Config
	logger      *log.Logger
}

func NewOrchestrator(
	vectorStore vectorstore.VectorStore,
	confidenceScorer ConfidenceScorer,
	relevanceGrader RelevanceGrader,
	expander QueryExpander,
	paraphraser Paraphraser,
	monitor *monitoring.PerformanceMonitor,
	cfg Config,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		vectorStore: vectorStore,
		scorer:      confidenceScorer,
		grader:      relevanceGrader,
		expander:    expander,
		paraphraser: paraphraser,
		monitor:     monitor,
		cfg:         cfg,
		logger:      logger,
	}
}

// Retrieve runs the state machine to completion. It never returns an
// error: exhausted retries end in the Fallback state with whatever the
// last attempt produced, and the caller decides how to degrade.
func (o *Orchestrator) Retrieve(ctx context.Context, requestID, question, strategy string) *Result {
	req := &Result{
		Question:         question,
		OriginalQuestion: question,
		Strategy:         strategy,
	}

	for state := StateSelectStrategy; state != StateDone; {
		started := time.Now()
		next := o.step(ctx, state, req)
		o.logStage(requestID, state, time.Since(started), req)
		state = next
	}

	return req
}

func (o *Orchestrator) step(ctx context.Context, state State, req *Result) State {
	switch state {
	case StateSelectStrategy:
		return o.selectStrategy(req)
	case StateQueryStore:
		return o.queryStore(ctx, req)
	case StateMerge:
		return o.merge(req)
	case StateScore:
		return o.score(ctx, req)
	case StateEarlyStopCheck:
		return o.earlyStopCheck(req)
	case StateGrade:
		return o.grade(ctx, req)
	case StateFilter:
		return o.filter(req)
	case StateRetry:
		return o.retry(ctx, req)
	case StateFallback:
		return o.fallback(req)
	default:
		return StateDone
	}
}

func (o *Orchestrator) selectStrategy(req *Result) State {
	if _, ok := o.cfg.Strategies[req.Strategy]; !ok {
		req.Strategy = o.cfg.DefaultStrategy
	}
	// Retries escalate to the widest net: the narrow strategies already
	// failed to surface anything relevant for this question.
	if req.RetryCount > 0 {
		req.Strategy = store.StrategyComprehensive
	}
	o.logger.Printf("[ORCHESTRATOR] Strategy %s (attempt %d) for: %.60s",
		req.Strategy, req.RetryCount+1, req.Question)
	return StateQueryStore
}

func (o *Orchestrator) queryStore(ctx context.Context, req *Result) State {
	params := o.cfg.Strategies[req.Strategy]

	queries := []string{req.Question}
	if req.Strategy == store.StrategyComprehensive && o.expander != nil {
		queries = o.expander.Expand(ctx, req.Question)
		req.QueryVariations = queries
	}

	// Sub-queries run concurrently under the worker bound. Each one fails
	// independently: a dead variant never aborts its siblings.
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, o.cfg.MaxWorkers)
	)

	req.Candidates = nil
	for _, query := range queries {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			queryCtx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
			defer cancel()

			docs, err := o.vectorStore.SimilaritySearch(queryCtx, query, params.K, params.FetchK)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				req.ErrorLog = append(req.ErrorLog, fmt.Sprintf("vector query failed: %v", err))
				o.logger.Printf("[ORCHESTRATOR] Vector query failed for %.40s: %v", query, err)
				return
			}
			req.Candidates = append(req.Candidates, docs...)
		}(query)
	}
	wg.Wait()

	o.logger.Printf("[ORCHESTRATOR] %d raw candidates from %d queries", len(req.Candidates), len(queries))
	return StateMerge
}

func (o *Orchestrator) merge(req *Result) State {
	// Dedup by source id, keeping the higher-scored occurrence when two
	// variant queries return the same chunk.
	bySource := make(map[string]int)
	merged := req.Candidates[:0]
	for _, doc := range req.Candidates {
		if idx, seen := bySource[doc.Source]; seen {
			if doc.Score > merged[idx].Score {
				merged[idx] = doc
			}
			continue
		}
		bySource[doc.Source] = len(merged)
		merged = append(merged, doc)
	}
	req.Candidates = merged

	o.logger.Printf("[ORCHESTRATOR] %d candidates after merge", len(req.Candidates))
	return StateScore
}

func (o *Orchestrator) score(ctx context.Context, req *Result) State {
	for i := range req.Candidates {
		confidence, _ := o.scorer.Score(ctx, req.Question, req.Candidates[i].Content)
		req.Candidates[i].Confidence = confidence
	}
	return StateEarlyStopCheck
}

// earlyStopCheck runs BEFORE grading: when enough high-confidence documents
// are already present, the expensive batch-grading call is skipped entirely.
func (o *Orchestrator) earlyStopCheck(req *Result) State {
	if !o.cfg.EarlyStoppingEnabled {
		return StateGrade
	}

	var highConfidence []store.Document
	for _, doc := range req.Candidates {
		if doc.Confidence >= o.cfg.ConfidenceThreshold {
			doc.Relevant = true
			highConfidence = append(highConfidence, doc)
		}
	}

	if len(highConfidence) < o.cfg.MinRelevantDocs {
		return StateGrade
	}

	req.EarlyStopped = true
	req.Documents = highConfidence
	o.logger.Printf("[ORCHESTRATOR] Early stop: %d documents >= %.2f, skipping grader",
		len(highConfidence), o.cfg.ConfidenceThreshold)
	return StateFilter
}

func (o *Orchestrator) grade(ctx context.Context, req *Result) State {
	verdicts := o.grader.Grade(ctx, req.Question, req.Candidates)
	for _, verdict := range verdicts {
		if verdict.Index < 0 || verdict.Index >= len(req.Candidates) {
			continue
		}
		req.Candidates[verdict.Index].Relevant = verdict.IsRelevant
		req.Candidates[verdict.Index].Confidence = verdict.Confidence
	}
	return StateFilter
}

func (o *Orchestrator) filter(req *Result) State {
	if !req.EarlyStopped {
		req.Documents = nil
		for _, doc := range req.Candidates {
			if doc.Relevant {
				req.Documents = append(req.Documents, doc)
			}
		}
	}

	// Rerank survivors by confidence, best first.
	sort.SliceStable(req.Documents, func(i, j int) bool {
		return req.Documents[i].Confidence > req.Documents[j].Confidence
	})
	req.Confidence = aggregateConfidence(req.Documents)

	if len(req.Documents) == 0 {
		if req.RetryCount < o.cfg.MaxRetries {
			return StateRetry
		}
		return StateFallback
	}

	o.logger.Printf("[ORCHESTRATOR] %d relevant documents, confidence %.3f (early stop: %t)",
		len(req.Documents), req.Confidence, req.EarlyStopped)
	return StateDone
}

func (o *Orchestrator) retry(ctx context.Context, req *Result) State {
	req.RetryCount++
	req.Candidates = nil
	req.Documents = nil
	req.EarlyStopped = false

	rephrased := req.Question
	if o.paraphraser != nil {
		rephrased = o.paraphraser.Paraphrase(ctx, req.Question)
	}
	o.logger.Printf("[ORCHESTRATOR] Retry %d/%d, rephrased question", req.RetryCount, o.cfg.MaxRetries)
	req.Question = rephrased

	return StateSelectStrategy
}

func (o *Orchestrator) fallback(req *Result) State {
	req.Fallback = true
	req.Confidence = aggregateConfidence(req.Documents)
	o.logger.Printf("[ORCHESTRATOR] Retries exhausted after %d attempts, entering fallback", req.RetryCount+1)
	return StateDone
}

// aggregateConfidence is the mean of the surviving documents' confidence
// values, 0 for an empty set.
func aggregateConfidence(documents []store.Document) float64 {
	if len(documents) == 0 {
		return 0
	}
	sum := 0.0
	for _, doc := range documents {
		sum += doc.Confidence
	}
	return sum / float64(len(documents))
}

func (o *Orchestrator) logStage(requestID string, state State, duration time.Duration, req *Result) {
	if o.monitor == nil || requestID == "" {
		return
	}
	o.monitor.LogStage(requestID, "retrieval."+state.String(), duration, map[string]interface{}{
		"strategy":   req.Strategy,
		"candidates": len(req.Candidates),
		"documents":  len(req.Documents),
		"retry":      req.RetryCount,
	})
}

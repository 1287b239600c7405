package pipeline

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"ai-docs-helper/pkg/monitoring"
	"ai-docs-helper/pkg/rag/cache"
	"ai-docs-helper/pkg/rag/generation"
	"ai-docs-helper/pkg/rag/search"
	"ai-docs-helper/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeRetriever struct {
	mu      sync.Mutex
	calls   int
	asked   []string
	results []*search.Result // consumed in order; last one repeats
}

func (f *fakeRetriever) Retrieve(ctx context.Context, requestID, question, strategy string) *search.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.asked = append(f.asked, question)
	idx := f.calls - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx]
}

type fakeGenerator struct {
	calls    int
	response string
}

func (f *fakeGenerator) Generate(ctx context.Context, question string, documents []store.Document) (string, []store.SourceRef) {
	f.calls++
	sources := make([]store.SourceRef, 0, len(documents))
	for _, d := range documents {
		sources = append(sources, store.SourceRef{Source: d.Source, Confidence: d.Confidence})
	}
	return f.response, sources
}

type fakeGroundingGrader struct {
	verdicts []bool // consumed in order; last repeats
	calls    int
}

func (f *fakeGroundingGrader) Grounded(ctx context.Context, documents []store.Document, generation string) bool {
	idx := f.calls
	f.calls++
	if idx >= len(f.verdicts) {
		idx = len(f.verdicts) - 1
	}
	return f.verdicts[idx]
}

type fakeQualityGrader struct {
	verdict bool
	calls   int
}

func (f *fakeQualityGrader) Addresses(ctx context.Context, question, generation string) bool {
	f.calls++
	return f.verdict
}

type fakeParaphraser struct {
	calls int
}

func (f *fakeParaphraser) Paraphrase(ctx context.Context, question string) string {
	f.calls++
	return question + " (rephrased)"
}

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func goodResult() *search.Result {
	return &search.Result{
		Documents: []store.Document{
			{Source: "a.md", Content: "doc-a", Confidence: 0.9},
			{Source: "b.md", Content: "doc-b", Confidence: 0.8},
		},
		Confidence: 0.85,
	}
}

type pipelineFixture struct {
	pipeline    *Pipeline
	cache       *cache.QueryCache
	retriever   *fakeRetriever
	generator   *fakeGenerator
	grounding   *fakeGroundingGrader
	quality     *fakeQualityGrader
	paraphraser *fakeParaphraser
}

func newFixture(t *testing.T, retriever *fakeRetriever, generator *fakeGenerator, grounding *fakeGroundingGrader, quality *fakeQualityGrader) *pipelineFixture {
	t.Helper()
	qc := cache.NewQueryCache(cache.DefaultConfig(), nil, discard())
	monitor := monitoring.NewPerformanceMonitor(t.TempDir(), discard())
	para := &fakeParaphraser{}
	p := NewPipeline(qc, monitor, retriever, generator, grounding, quality, para,
		Config{MaxRetries: 2, DefaultStrategy: store.StrategyStandard, CacheEnabled: true}, discard())
	return &pipelineFixture{
		pipeline:    p,
		cache:       qc,
		retriever:   retriever,
		generator:   generator,
		grounding:   grounding,
		quality:     quality,
		paraphraser: para,
	}
}

// --- Tests ---

func TestAskHappyPath(t *testing.T) {
	fx := newFixture(t,
		&fakeRetriever{results: []*search.Result{goodResult()}},
		&fakeGenerator{response: "The answer [Source 1]."},
		&fakeGroundingGrader{verdicts: []bool{true}},
		&fakeQualityGrader{verdict: true},
	)

	answer := fx.pipeline.Ask(context.Background(), "What is the forecast horizon?", "")

	assert.Equal(t, "The answer [Source 1].", answer.Generation)
	assert.Equal(t, "What is the forecast horizon?", answer.Question)
	assert.InDelta(t, 0.85, answer.Confidence, 1e-9)
	require.Len(t, answer.Sources, 2)
	assert.False(t, answer.FromCache)
	assert.NotEmpty(t, answer.CacheKey)
	assert.Empty(t, answer.ErrorLog)
}

func TestAskSecondCallHitsCache(t *testing.T) {
	retriever := &fakeRetriever{results: []*search.Result{goodResult()}}
	fx := newFixture(t, retriever,
		&fakeGenerator{response: "answer"},
		&fakeGroundingGrader{verdicts: []bool{true}},
		&fakeQualityGrader{verdict: true},
	)

	first := fx.pipeline.Ask(context.Background(), "question", store.StrategyStandard)
	second := fx.pipeline.Ask(context.Background(), "question", store.StrategyStandard)

	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Generation, second.Generation)
	assert.Equal(t, 1, retriever.calls, "retrieval does not run on a cache hit")
}

func TestAskStrategyIsPartOfCacheKey(t *testing.T) {
	retriever := &fakeRetriever{results: []*search.Result{goodResult()}}
	fx := newFixture(t, retriever,
		&fakeGenerator{response: "answer"},
		&fakeGroundingGrader{verdicts: []bool{true}},
		&fakeQualityGrader{verdict: true},
	)

	fx.pipeline.Ask(context.Background(), "question", store.StrategyFast)
	answer := fx.pipeline.Ask(context.Background(), "question", store.StrategyComprehensive)

	assert.False(t, answer.FromCache, "different strategies cache independently")
	assert.Equal(t, 2, retriever.calls)
}

func TestAskUngroundedAnswerRetriesWithRephrase(t *testing.T) {
	retriever := &fakeRetriever{results: []*search.Result{goodResult()}}
	fx := newFixture(t, retriever,
		&fakeGenerator{response: "answer"},
		&fakeGroundingGrader{verdicts: []bool{false, true}},
		&fakeQualityGrader{verdict: true},
	)

	answer := fx.pipeline.Ask(context.Background(), "question", store.StrategyStandard)

	assert.Equal(t, "answer", answer.Generation)
	assert.Equal(t, 1, fx.paraphraser.calls)
	assert.Equal(t, 2, retriever.calls, "ungrounded answer triggers a fresh retrieval")
	require.Len(t, retriever.asked, 2)
	assert.Equal(t, "question", retriever.asked[0])
	assert.Equal(t, "question (rephrased)", retriever.asked[1])
	assert.Equal(t, "question", answer.Question, "served answer keeps the original question")
	assert.NotEmpty(t, answer.ErrorLog)
}

func TestAskUngroundedAfterAllRetriesStillServes(t *testing.T) {
	fx := newFixture(t,
		&fakeRetriever{results: []*search.Result{goodResult()}},
		&fakeGenerator{response: "shaky answer"},
		&fakeGroundingGrader{verdicts: []bool{false}},
		&fakeQualityGrader{verdict: true},
	)

	answer := fx.pipeline.Ask(context.Background(), "question", store.StrategyStandard)

	assert.Equal(t, "shaky answer", answer.Generation, "the last generation is served, not withheld")
	assert.Equal(t, 2, fx.paraphraser.calls, "rephrased once per allowed retry")
	assert.Contains(t, answer.ErrorLog, "answer not grounded after all retries")
}

func TestAskOffTargetAnswerServedWithWarning(t *testing.T) {
	fx := newFixture(t,
		&fakeRetriever{results: []*search.Result{goodResult()}},
		&fakeGenerator{response: "tangent"},
		&fakeGroundingGrader{verdicts: []bool{true}},
		&fakeQualityGrader{verdict: false},
	)

	answer := fx.pipeline.Ask(context.Background(), "question", store.StrategyStandard)

	assert.Equal(t, "tangent", answer.Generation)
	assert.Contains(t, answer.ErrorLog, "answer may not fully address the question")
	assert.Equal(t, 0, fx.paraphraser.calls, "off-target does not trigger a retry")
}

func TestAskRetrievalFallbackDegrades(t *testing.T) {
	retriever := &fakeRetriever{results: []*search.Result{{
		Fallback: true,
		ErrorLog: []string{"vector query failed: store unavailable"},
	}}}
	generator := &fakeGenerator{response: "should not run"}
	fx := newFixture(t, retriever, generator,
		&fakeGroundingGrader{verdicts: []bool{true}},
		&fakeQualityGrader{verdict: true},
	)

	answer := fx.pipeline.Ask(context.Background(), "question", store.StrategyStandard)

	assert.Equal(t, generation.FallbackAnswer, answer.Generation)
	assert.Zero(t, answer.Confidence)
	assert.Equal(t, 0, generator.calls)
	assert.Contains(t, answer.ErrorLog, "vector query failed: store unavailable")

	// Degraded answers are not written through to the cache.
	cached, hit := fx.cache.Get(context.Background(), "question", store.StrategyStandard)
	assert.False(t, hit)
	assert.Nil(t, cached)
}

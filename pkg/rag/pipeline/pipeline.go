package pipeline

import (
	"context"
	"log"
	"time"

	"ai-docs-helper/pkg/monitoring"
	"ai-docs-helper/pkg/rag/cache"
	"ai-docs-helper/pkg/rag/generation"
	"ai-docs-helper/pkg/rag/search"
	"ai-docs-helper/pkg/store"

	"github.com/google/uuid"
)

// Retriever produces the filtered, confidence-ranked document set for a
// question. Satisfied by search.Orchestrator.
type Retriever interface {
	Retrieve(ctx context.Context, requestID, question, strategy string) *search.Result
}

// AnswerGenerator turns a question and its documents into answer text with
// source attributions. Satisfied by generation.Generator.
type AnswerGenerator interface {
	Generate(ctx context.Context, question string, documents []store.Document) (string, []store.SourceRef)
}

// GroundingGrader checks that a generation is supported by its documents.
type GroundingGrader interface {
	Grounded(ctx context.Context, documents []store.Document, generation string) bool
}

// QualityGrader checks that a generation actually addresses the question.
type QualityGrader interface {
	Addresses(ctx context.Context, question, generation string) bool
}

// Paraphraser rewords a question for another attempt.
type Paraphraser interface {
	Paraphrase(ctx context.Context, question string) string
}

type Config struct {
	MaxRetries      int
	DefaultStrategy string
	CacheEnabled    bool
}

// Pipeline is the end-to-end query path: cache lookup, retrieval,
// generation, answer verification, cache write-through.
type Pipeline struct {
	queryCache      *cache.QueryCache
	monitor         *monitoring.PerformanceMonitor
	retriever       Retriever
	generator       AnswerGenerator
	groundingGrader GroundingGrader
	qualityGrader   QualityGrader
	paraphraser     Paraphraser
	cfg             Config
	logger          *log.Logger
}

func NewPipeline(
	queryCache *cache.QueryCache,
	monitor *monitoring.PerformanceMonitor,
	retriever Retriever,
	generator AnswerGenerator,
	groundingGrader GroundingGrader,
	qualityGrader QualityGrader,
	paraphraser Paraphraser,
	cfg Config,
	logger *log.Logger,
) *Pipeline {
	return &Pipeline{
		queryCache:      queryCache,
		monitor:         monitor,
		retriever:       retriever,
		generator:       generator,
		groundingGrader: groundingGrader,
		qualityGrader:   qualityGrader,
		paraphraser:     paraphraser,
		cfg:             cfg,
		logger:          logger,
	}
}

// Ask answers a question end to end. It never returns an error: every
// failure mode degrades to a served answer, with the trouble recorded in
// the answer's error log.
func (p *Pipeline) Ask(ctx context.Context, question, strategy string) *store.Answer {
	if strategy == "" {
		strategy = p.cfg.DefaultStrategy
	}

	requestID := uuid.NewString()
	p.monitor.StartRequest(requestID)
	defer func() {
		summary := p.monitor.EndRequest(requestID)
		p.logger.Printf("[PIPELINE] Request %s done in %.3fs, bottlenecks: %v",
			requestID, summary.TotalTime, summary.Bottlenecks)
	}()

	p.logger.Printf("[PIPELINE] Request %s (%s): %.80s", requestID, strategy, question)

	if p.cfg.CacheEnabled {
		if answer := p.lookupCache(ctx, requestID, question, strategy); answer != nil {
			return answer
		}
	}

	answer := p.retrieveAndGenerate(ctx, requestID, question, strategy)

	if p.cfg.CacheEnabled && !isDegraded(answer) {
		started := time.Now()
		p.queryCache.Set(ctx, question, strategy, *answer)
		p.logStage(requestID, "cache_write", time.Since(started), nil)
	}
	return answer
}

func (p *Pipeline) lookupCache(ctx context.Context, requestID, question, strategy string) *store.Answer {
	started := time.Now()
	answer, hit := p.queryCache.Get(ctx, question, strategy)
	p.logStage(requestID, "cache_lookup", time.Since(started), map[string]interface{}{"hit": hit})
	if !hit {
		return nil
	}
	answer.FromCache = true
	p.logger.Printf("[PIPELINE] Cache hit for request %s", requestID)
	return answer
}

func (p *Pipeline) retrieveAndGenerate(ctx context.Context, requestID, question, strategy string) *store.Answer {
	current := question
	var errorLog []string

	for attempt := 0; ; attempt++ {
		result := p.retriever.Retrieve(ctx, requestID, current, strategy)
		errorLog = append(errorLog, result.ErrorLog...)

		if result.Fallback || len(result.Documents) == 0 {
			p.logger.Printf("[PIPELINE] Retrieval exhausted for request %s", requestID)
			return p.degradedAnswer(question, errorLog)
		}

		started := time.Now()
		text, sources := p.generator.Generate(ctx, current, result.Documents)
		p.logStage(requestID, "generation", time.Since(started), map[string]interface{}{
			"documents": len(result.Documents),
		})

		if text == generation.FallbackAnswer {
			errorLog = append(errorLog, "generation produced no answer")
			return p.degradedAnswer(question, errorLog)
		}

		started = time.Now()
		grounded := p.groundingGrader.Grounded(ctx, result.Documents, text)
		p.logStage(requestID, "verification", time.Since(started), map[string]interface{}{
			"grounded": grounded,
			"attempt":  attempt,
		})

		if !grounded {
			if attempt < p.cfg.MaxRetries {
				current = p.paraphraser.Paraphrase(ctx, question)
				errorLog = append(errorLog, "answer not grounded, retrying with rephrased question")
				p.logger.Printf("[PIPELINE] Ungrounded answer on request %s, attempt %d, rephrasing", requestID, attempt+1)
				continue
			}
			// Out of retries: serve the last generation rather than nothing.
			errorLog = append(errorLog, "answer not grounded after all retries")
		} else if !p.qualityGrader.Addresses(ctx, current, text) {
			// A grounded answer that misses the question is still served.
			errorLog = append(errorLog, "answer may not fully address the question")
			p.logger.Printf("[PIPELINE] Answer on request %s graded as off-target", requestID)
		}

		return &store.Answer{
			Question:   question,
			Generation: text,
			Confidence: result.Confidence,
			Sources:    sources,
			CacheKey:   cache.GenerateKey(question, strategy),
			ErrorLog:   errorLog,
		}
	}
}

func (p *Pipeline) degradedAnswer(question string, errorLog []string) *store.Answer {
	return &store.Answer{
		Question:   question,
		Generation: generation.FallbackAnswer,
		Confidence: 0,
		ErrorLog:   errorLog,
	}
}

func isDegraded(answer *store.Answer) bool {
	return answer.Generation == generation.FallbackAnswer
}

func (p *Pipeline) logStage(requestID, stage string, duration time.Duration, metadata map[string]interface{}) {
	p.monitor.LogStage(requestID, stage, duration, metadata)
}

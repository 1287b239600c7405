package bootstrap

import (
	"log"
	"os"

	"ai-docs-helper/internal/config"
	"ai-docs-helper/internal/controller"
	"ai-docs-helper/internal/pkg/logger"
	"ai-docs-helper/pkg/embedding"
	"ai-docs-helper/pkg/llm/factory"
	"ai-docs-helper/pkg/monitoring"
	"ai-docs-helper/pkg/rag/cache"
	"ai-docs-helper/pkg/rag/expand"
	"ai-docs-helper/pkg/rag/generation"
	"ai-docs-helper/pkg/rag/grader"
	"ai-docs-helper/pkg/rag/paraphrase"
	"ai-docs-helper/pkg/rag/pipeline"
	"ai-docs-helper/pkg/rag/scorer"
	"ai-docs-helper/pkg/rag/search"
	"ai-docs-helper/pkg/vectorstore"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// queryVariants is how many rephrasings the comprehensive strategy fans
// out to, on top of the original question.
const queryVariants = 3

type Container struct {
	// Controllers
	RagController controller.IRagController

	// Exposed for cmd/ask and for graceful shutdown in main.go
	Pipeline   *pipeline.Pipeline
	QueryCache *cache.QueryCache
	Monitor    *monitoring.PerformanceMonitor
	SysLogger  logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	ragLogger := log.New(os.Stdout, "", log.LstdFlags)

	// 2. Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "openai" {
		embeddingProvider = embedding.NewOpenAIProvider(cfg.Ai.OpenAIBaseURL, cfg.Ai.OpenAIKey, cfg.Ai.EmbeddingModel)
	} else {
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel)
	}
	sysLogger.Info("bootstrap", "Embedding provider initialized", map[string]interface{}{
		"provider": cfg.Ai.EmbeddingProvider,
		"model":    cfg.Ai.EmbeddingModel,
	})

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.OpenAIBaseURL,
		cfg.Ai.OpenAIKey,
		cfg.Ai.LLMTimeout,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	sysLogger.Info("bootstrap", "LLM provider initialized", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	// 3. Infrastructure
	var rdb *redis.Client
	if cfg.Cache.RedisEnabled {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb = redis.NewClient(opt)
	}

	queryCache := cache.NewQueryCache(cache.Config{
		TTL:             cfg.Cache.TTL,
		MaxLocalEntries: cfg.Cache.MaxLocalEntries,
	}, rdb, ragLogger)

	monitor := monitoring.NewPerformanceMonitor(cfg.Monitor.LogDir, ragLogger)

	vectorStore := vectorstore.NewPgVectorStore(db, embeddingProvider)

	// 4. RAG components
	confidenceScorer := scorer.NewScorer(embeddingProvider, ragLogger)
	batchGrader := grader.NewBatchGrader(llmProvider, cfg.Retrieval.BatchSize, cfg.Retrieval.MaxWorkers, ragLogger)
	expander := expand.NewExpander(llmProvider, queryVariants, ragLogger)
	paraphraser := paraphrase.NewParaphraser(llmProvider, ragLogger)

	strategies := make(map[string]search.StrategyParams, len(cfg.Retrieval.Strategies))
	for name, params := range cfg.Retrieval.Strategies {
		strategies[name] = search.StrategyParams{K: params.K, FetchK: params.FetchK}
	}

	orchestrator := search.NewOrchestrator(
		vectorStore,
		confidenceScorer,
		batchGrader,
		expander,
		paraphraser,
		monitor,
		search.Config{
			DefaultStrategy:      cfg.Retrieval.DefaultStrategy,
			Strategies:           strategies,
			MaxRetries:           cfg.Retrieval.MaxRetries,
			MaxWorkers:           cfg.Retrieval.MaxWorkers,
			QueryTimeout:         cfg.Retrieval.QueryTimeout,
			EarlyStoppingEnabled: cfg.Retrieval.EarlyStoppingEnabled,
			MinRelevantDocs:      cfg.Retrieval.MinRelevantDocs,
			ConfidenceThreshold:  cfg.Retrieval.ConfidenceThreshold,
		},
		ragLogger,
	)

	generator := generation.NewGenerator(llmProvider, ragLogger)
	hallucinationGrader := grader.NewHallucinationGrader(llmProvider, ragLogger)
	answerGrader := grader.NewAnswerGrader(llmProvider, ragLogger)

	ragPipeline := pipeline.NewPipeline(
		queryCache,
		monitor,
		orchestrator,
		generator,
		hallucinationGrader,
		answerGrader,
		paraphraser,
		pipeline.Config{
			MaxRetries:      cfg.Retrieval.MaxRetries,
			DefaultStrategy: cfg.Retrieval.DefaultStrategy,
			CacheEnabled:    cfg.Cache.Enabled,
		},
		ragLogger,
	)

	// 5. Controllers
	ragController := controller.NewRagController(ragPipeline, queryCache)

	sysLogger.Info("bootstrap", "Container ready", map[string]interface{}{
		"default_strategy": cfg.Retrieval.DefaultStrategy,
		"cache_enabled":    cfg.Cache.Enabled,
		"redis_enabled":    cfg.Cache.RedisEnabled,
		"early_stopping":   cfg.Retrieval.EarlyStoppingEnabled,
	})

	return &Container{
		RagController: ragController,
		Pipeline:      ragPipeline,
		QueryCache:    queryCache,
		Monitor:       monitor,
		SysLogger:     sysLogger,
	}
}

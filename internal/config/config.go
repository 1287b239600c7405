package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Ai        AIConfig
	Retrieval RetrievalConfig
	Cache     CacheConfig
	Monitor   MonitorConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	LLMProvider       string `validate:"oneof=ollama openai"`
	LLMModel          string
	LLMTimeout        time.Duration
	EmbeddingProvider string `validate:"oneof=ollama openai"`
	EmbeddingModel    string
	OllamaBaseURL     string
	OpenAIBaseURL     string
	OpenAIKey         string
}

// StrategyParams controls result-set size for one named retrieval strategy.
type StrategyParams struct {
	K      int `validate:"gt=0"`
	FetchK int `validate:"gt=0"`
}

type RetrievalConfig struct {
	DefaultStrategy string                    `validate:"oneof=fast standard comprehensive"`
	Strategies      map[string]StrategyParams `validate:"required,dive"`
	BatchSize       int                       `validate:"gt=0"`
	MaxRetries      int                       `validate:"gte=0"`
	MaxWorkers      int                       `validate:"gt=0"`
	QueryTimeout    time.Duration

	EarlyStoppingEnabled bool
	MinRelevantDocs      int     `validate:"gt=0"`
	ConfidenceThreshold  float64 `validate:"gte=0,lte=1"`
}

type CacheConfig struct {
	Enabled         bool
	TTL             time.Duration
	MaxLocalEntries int `validate:"gt=0"`
	RedisEnabled    bool
}

type MonitorConfig struct {
	LogDir string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3.2"),
			LLMTimeout:        getEnvAsDuration("LLM_TIMEOUT_SECONDS", 60*time.Second),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
		},
		Retrieval: RetrievalConfig{
			DefaultStrategy: getEnv("RETRIEVAL_STRATEGY", "standard"),
			Strategies: map[string]StrategyParams{
				"fast": {
					K:      getEnvAsInt("FAST_K", 5),
					FetchK: getEnvAsInt("FAST_FETCH_K", 15),
				},
				"standard": {
					K:      getEnvAsInt("STANDARD_K", 10),
					FetchK: getEnvAsInt("STANDARD_FETCH_K", 20),
				},
				"comprehensive": {
					K:      getEnvAsInt("COMPREHENSIVE_K", 15),
					FetchK: getEnvAsInt("COMPREHENSIVE_FETCH_K", 40),
				},
			},
			BatchSize:            getEnvAsInt("GRADING_BATCH_SIZE", 5),
			MaxRetries:           getEnvAsInt("MAX_RETRIES", 2),
			MaxWorkers:           getEnvAsInt("MAX_WORKERS", 5),
			QueryTimeout:         getEnvAsDuration("QUERY_TIMEOUT_SECONDS", 15*time.Second),
			EarlyStoppingEnabled: getEnvAsBool("EARLY_STOPPING_ENABLED", true),
			MinRelevantDocs:      getEnvAsInt("EARLY_STOPPING_MIN_RELEVANT_DOCS", 2),
			ConfidenceThreshold:  getEnvAsFloat("EARLY_STOPPING_CONFIDENCE_THRESHOLD", 0.8),
		},
		Cache: CacheConfig{
			Enabled:         getEnvAsBool("CACHE_ENABLED", true),
			TTL:             getEnvAsDuration("CACHE_TTL_SECONDS", time.Hour),
			MaxLocalEntries: getEnvAsInt("CACHE_MAX_LOCAL_ENTRIES", 1000),
			RedisEnabled:    getEnvAsBool("CACHE_REDIS_ENABLED", false),
		},
		Monitor: MonitorConfig{
			LogDir: getEnv("PERFORMANCE_LOG_DIR", "logs/performance"),
		},
	}

	if err := Validate(cfg); err != nil {
		log.Fatalf("[FATAL] Invalid configuration: %v", err)
	}

	return cfg
}

// Validate checks the loaded configuration. Invalid strategy names or
// missing provider credentials are fatal at startup, never mid-request.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}

	if _, ok := cfg.Retrieval.Strategies[cfg.Retrieval.DefaultStrategy]; !ok {
		return fmt.Errorf("unknown retrieval strategy %q", cfg.Retrieval.DefaultStrategy)
	}
	if cfg.Ai.LLMProvider == "openai" && cfg.Ai.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
	}
	if cfg.Ai.EmbeddingProvider == "openai" && cfg.Ai.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if seconds, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

package factory

import (
	"fmt"
	"time"

	"ai-docs-helper/pkg/llm"
	"ai-docs-helper/pkg/llm/ollama"
	"ai-docs-helper/pkg/llm/openai"
)

func NewLLMProvider(providerType, modelName, ollamaBaseURL, openaiBaseURL, openaiKey string, timeout time.Duration) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		if ollamaBaseURL == "" {
			ollamaBaseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(ollamaBaseURL, modelName, timeout), nil
	case "openai":
		return openai.NewOpenAIProvider(openaiKey, openaiBaseURL, modelName, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}

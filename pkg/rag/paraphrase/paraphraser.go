package paraphrase

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ai-docs-helper/pkg/llm"
)

// Paraphraser rewrites a question that yielded no relevant documents so the
// next retrieval attempt can take a different angle.
type Paraphraser struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

func NewParaphraser(llmProvider llm.LLMProvider, logger *log.Logger) *Paraphraser {
	return &Paraphraser{llmProvider: llmProvider, logger: logger}
}

const paraphraseSystem = `You rephrase questions to improve document retrieval.
Keep the intent identical but change the wording and structure.
Return only the rephrased question with no explanation.`

// Paraphrase returns a rephrased question. On failure the original is
// returned unchanged so the retry loop can still proceed.
func (p *Paraphraser) Paraphrase(ctx context.Context, question string) string {
	raw, err := p.llmProvider.Chat(ctx, []llm.Message{
		{Role: "system", Content: paraphraseSystem},
		{Role: "user", Content: fmt.Sprintf("Rephrase this question: %s", question)},
	})
	if err != nil {
		p.logger.Printf("[PARAPHRASE] Failed: %v, keeping original question", err)
		return question
	}

	rephrased := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if rephrased == "" {
		return question
	}

	p.logger.Printf("[PARAPHRASE] %.50s -> %.50s", question, rephrased)
	return rephrased
}

package expand

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ai-docs-helper/pkg/llm"
)

// Expander generates alternative phrasings of a question for the
// comprehensive retrieval strategy.
type Expander struct {
	llmProvider llm.LLMProvider
	variants    int
	logger      *log.Logger
}

func NewExpander(llmProvider llm.LLMProvider, variants int, logger *log.Logger) *Expander {
	if variants <= 0 {
		variants = 3
	}
	return &Expander{
		llmProvider: llmProvider,
		variants:    variants,
		logger:      logger,
	}
}

const expandSystem = `You generate alternative phrasings of a search query to improve document retrieval.
Produce rephrasings that use different vocabulary but preserve the meaning.
Return one rephrasing per line with no numbering and no extra text.`

// Expand returns the original question plus up to `variants` rephrasings.
// On failure the original question alone is returned: expansion is an
// optimization, not a requirement.
func (e *Expander) Expand(ctx context.Context, question string) []string {
	prompt := fmt.Sprintf("%s\n\nGenerate %d alternative phrasings of this query:\n\n%s", expandSystem, e.variants, question)
	raw, err := e.llmProvider.Generate(ctx, prompt)
	if err != nil {
		e.logger.Printf("[EXPAND] Query expansion failed: %v", err)
		return []string{question}
	}

	variations := []string{question}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" || strings.EqualFold(line, question) {
			continue
		}
		variations = append(variations, line)
		if len(variations) > e.variants {
			break
		}
	}

	e.logger.Printf("[EXPAND] %d query variations for: %.50s", len(variations), question)
	return variations
}

package generation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ai-docs-helper/pkg/llm"
	"ai-docs-helper/pkg/store"
)

// FallbackAnswer is returned when generation cannot produce anything
// useful, either because no relevant documents survived retrieval or
// because the model call itself failed.
const FallbackAnswer = "I don't have enough information to answer that."

const generationSystem = `You are an assistant for question-answering tasks over a technical documentation corpus.
Use the retrieved context below to answer the question. Each context block is labeled [Source N]; cite the sources you used inline, e.g. "latency is dominated by grading [Source 2]".
If the context does not contain the answer, say that you don't know. Keep the answer concise, three sentences maximum unless the question demands more.`

// Generator turns a question plus the orchestrator's filtered documents
// into a final answer with source attributions.
type Generator struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

func NewGenerator(llmProvider llm.LLMProvider, logger *log.Logger) *Generator {
	return &Generator{
		llmProvider: llmProvider,
		logger:      logger,
	}
}

// Generate produces the answer text and the sources it was grounded on.
// It never returns an error: a failed model call degrades to the
// fallback answer so the caller can still respond.
func (g *Generator) Generate(ctx context.Context, question string, documents []store.Document) (string, []store.SourceRef) {
	if len(documents) == 0 {
		g.logger.Printf("[GENERATION] No documents for: %.60s", question)
		return FallbackAnswer, nil
	}

	contextBlock, sources := formatContext(documents)

	messages := []llm.Message{
		{Role: "system", Content: generationSystem},
		{Role: "user", Content: fmt.Sprintf("Context:\n%s\nQuestion: %s", contextBlock, question)},
	}

	answer, err := g.llmProvider.Chat(ctx, messages, llm.WithTemperature(0))
	if err != nil {
		g.logger.Printf("[GENERATION] LLM call failed: %v", err)
		return FallbackAnswer, sources
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		g.logger.Printf("[GENERATION] Empty generation for: %.60s", question)
		return FallbackAnswer, sources
	}

	g.logger.Printf("[GENERATION] Generated %d chars from %d documents", len(answer), len(documents))
	return answer, sources
}

// formatContext renders the documents as numbered source blocks and
// returns the matching attribution list. Numbering starts at 1 so the
// labels line up with what the prompt asks the model to cite.
func formatContext(documents []store.Document) (string, []store.SourceRef) {
	var (
		sb      strings.Builder
		sources = make([]store.SourceRef, 0, len(documents))
	)
	for i, doc := range documents {
		fmt.Fprintf(&sb, "[Source %d] (%s)\n%s\n\n", i+1, doc.Source, doc.Content)
		sources = append(sources, store.SourceRef{
			Source:     doc.Source,
			Confidence: doc.Confidence,
		})
	}
	return sb.String(), sources
}

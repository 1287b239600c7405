package grader

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ai-docs-helper/pkg/llm"
	"ai-docs-helper/pkg/store"
)

// HallucinationGrader checks whether a generated answer is grounded in the
// retrieved documents.
type HallucinationGrader struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

func NewHallucinationGrader(llmProvider llm.LLMProvider, logger *log.Logger) *HallucinationGrader {
	return &HallucinationGrader{llmProvider: llmProvider, logger: logger}
}

const hallucinationSystem = `You are a grader assessing whether an LLM generation is grounded in a set of retrieved facts.
Answer with a single word: "yes" if the generation is supported by the facts, "no" otherwise.`

// Grounded reports whether the generation is supported by the documents.
// If the grading call fails, the generation is presumed acceptable.
func (g *HallucinationGrader) Grounded(ctx context.Context, documents []store.Document, generation string) bool {
	var facts strings.Builder
	for _, doc := range documents {
		facts.WriteString(doc.Content)
		facts.WriteString("\n\n")
	}

	prompt := fmt.Sprintf("Set of facts:\n%s\nLLM generation: %s", facts.String(), generation)
	raw, err := g.llmProvider.Chat(ctx, []llm.Message{
		{Role: "system", Content: hallucinationSystem},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		g.logger.Printf("[GRADER] Hallucination check failed: %v, presuming grounded", err)
		return true
	}
	return parseYesNo(raw, true)
}

// AnswerGrader checks whether a generated answer actually addresses the
// user's question.
type AnswerGrader struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

func NewAnswerGrader(llmProvider llm.LLMProvider, logger *log.Logger) *AnswerGrader {
	return &AnswerGrader{llmProvider: llmProvider, logger: logger}
}

const answerSystem = `You are a grader assessing whether an answer addresses / resolves a question.
Answer with a single word: "yes" if the answer resolves the question, "no" otherwise.`

// Addresses reports whether the generation resolves the question. If the
// grading call fails, the generation is presumed acceptable.
func (g *AnswerGrader) Addresses(ctx context.Context, question, generation string) bool {
	prompt := fmt.Sprintf("User question: %s\n\nLLM generation: %s", question, generation)
	raw, err := g.llmProvider.Chat(ctx, []llm.Message{
		{Role: "system", Content: answerSystem},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		g.logger.Printf("[GRADER] Answer check failed: %v, presuming useful", err)
		return true
	}
	return parseYesNo(raw, true)
}

func parseYesNo(raw string, fallback bool) bool {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(cleaned, "yes") {
		return true
	}
	if strings.HasPrefix(cleaned, "no") {
		return false
	}
	return fallback
}

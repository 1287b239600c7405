package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"ai-docs-helper/pkg/llm"
	"ai-docs-helper/pkg/store"
)

// DefaultConfidence is assigned by the lenient fallback when a grading call
// fails: documents are kept rather than silently dropped.
const DefaultConfidence = 0.6

// maxDocumentChars bounds how much of each document goes into the grading
// prompt.
const maxDocumentChars = 500

// DocumentRelevance is one grading verdict. Index is the 0-based position
// within the graded batch, not the global document list.
type DocumentRelevance struct {
	Index      int     `json:"document_index"`
	IsRelevant bool    `json:"is_relevant"`
	Confidence float64 `json:"confidence"`
}

type batchGradeResult struct {
	Scores []DocumentRelevance `json:"scores"`
}

// BatchGrader grades several documents against a question in one aggregated
// LLM call per batch.
type BatchGrader struct {
	llmProvider llm.LLMProvider
	batchSize   int
	maxWorkers  int
	logger      *log.Logger
}

func NewBatchGrader(llmProvider llm.LLMProvider, batchSize, maxWorkers int, logger *log.Logger) *BatchGrader {
	if batchSize <= 0 {
		batchSize = 5
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &BatchGrader{
		llmProvider: llmProvider,
		batchSize:   batchSize,
		maxWorkers:  maxWorkers,
		logger:      logger,
	}
}

const batchGradeSystem = `You are a grader assessing relevance of multiple documents to a user question.
For each document, determine if it contains information relevant to answering the question.

Grade each document as:
- is_relevant: true if the document contains relevant information
- confidence: your confidence in this assessment (0.0 to 1.0)

Be efficient but accurate. Look for keywords, concepts, and semantic relevance.

Respond with ONLY a JSON object of the form:
{"scores": [{"document_index": 0, "is_relevant": true, "confidence": 0.9}, ...]}
with exactly one entry per document, in document order.`

// Grade splits the documents into batches, grades each batch (concurrently,
// bounded by maxWorkers) and returns one verdict per input document in
// input order, indices re-mapped to the global list.
func (g *BatchGrader) Grade(ctx context.Context, question string, documents []store.Document) []DocumentRelevance {
	if len(documents) == 0 {
		return nil
	}

	results := make([]DocumentRelevance, len(documents))

	var wg sync.WaitGroup
	sem := make(chan struct{}, g.maxWorkers)

	for offset := 0; offset < len(documents); offset += g.batchSize {
		end := offset + g.batchSize
		if end > len(documents) {
			end = len(documents)
		}

		wg.Add(1)
		go func(offset int, batch []store.Document) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			for _, verdict := range g.GradeBatch(ctx, question, batch) {
				verdict.Index += offset
				results[verdict.Index] = verdict
			}
		}(offset, documents[offset:end])
	}

	wg.Wait()
	return results
}

// GradeBatch grades a single batch. Verdict indices are batch-local. If the
// grading call or its parsing fails, every document in the batch comes back
// relevant with DefaultConfidence (lenient fallback).
func (g *BatchGrader) GradeBatch(ctx context.Context, question string, batch []store.Document) []DocumentRelevance {
	if len(batch) == 0 {
		return nil
	}

	prompt := fmt.Sprintf("Question: %s\n\nDocuments to grade:\n%s", question, formatDocumentsForGrading(batch))

	raw, err := g.llmProvider.Chat(ctx, []llm.Message{
		{Role: "system", Content: batchGradeSystem},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		g.logger.Printf("[GRADER] Batch grading call failed: %v, applying lenient fallback", err)
		return lenientVerdicts(len(batch))
	}

	parsed, err := parseBatchGradeResult(raw)
	if err != nil {
		g.logger.Printf("[GRADER] Cannot parse grading response: %v, applying lenient fallback", err)
		return lenientVerdicts(len(batch))
	}

	// Align to the batch: anything the model skipped is kept leniently.
	verdicts := lenientVerdicts(len(batch))
	for _, score := range parsed.Scores {
		if score.Index >= 0 && score.Index < len(batch) {
			verdicts[score.Index] = score
		}
	}
	return verdicts
}

func lenientVerdicts(n int) []DocumentRelevance {
	verdicts := make([]DocumentRelevance, n)
	for i := range verdicts {
		verdicts[i] = DocumentRelevance{
			Index:      i,
			IsRelevant: true,
			Confidence: DefaultConfidence,
		}
	}
	return verdicts
}

func formatDocumentsForGrading(batch []store.Document) string {
	var b strings.Builder
	for i, doc := range batch {
		content := doc.Content
		if len(content) > maxDocumentChars {
			cut := maxDocumentChars
			// back up to a rune boundary so the truncation never splits a rune
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + "..."
		}
		fmt.Fprintf(&b, "[Document %d]:\n%s\n\n", i, content)
	}
	return b.String()
}

// parseBatchGradeResult extracts the JSON object from a model response that
// may be wrapped in code fences or prose.
func parseBatchGradeResult(raw string) (*batchGradeResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var result batchGradeResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("unmarshal grading response: %w", err)
	}
	if len(result.Scores) == 0 {
		return nil, fmt.Errorf("grading response has no scores")
	}
	return &result, nil
}

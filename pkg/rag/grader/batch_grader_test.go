package grader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"ai-docs-helper/pkg/llm"
	"ai-docs-helper/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(history) > 0 {
		f.prompts = append(f.prompts, history[len(history)-1].Content)
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no canned response")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func docs(n int) []store.Document {
	out := make([]store.Document, n)
	for i := range out {
		out[i] = store.Document{
			ID:      fmt.Sprintf("doc-%d", i),
			Source:  fmt.Sprintf("docs/%d.md", i),
			Content: fmt.Sprintf("content %d", i),
		}
	}
	return out
}

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestGradeBatchParsesVerdicts(t *testing.T) {
	fake := &fakeLLM{responses: []string{
		`{"scores": [
			{"document_index": 0, "is_relevant": true, "confidence": 0.9},
			{"document_index": 1, "is_relevant": false, "confidence": 0.3},
			{"document_index": 2, "is_relevant": true, "confidence": 0.8}
		]}`,
	}}
	g := NewBatchGrader(fake, 5, 1, discard())

	verdicts := g.GradeBatch(context.Background(), "question", docs(3))
	require.Len(t, verdicts, 3)
	assert.True(t, verdicts[0].IsRelevant)
	assert.False(t, verdicts[1].IsRelevant)
	assert.Equal(t, 0.9, verdicts[0].Confidence)
	assert.Equal(t, 1, fake.calls)
}

func TestGradeBatchLenientFallbackOnError(t *testing.T) {
	fake := &fakeLLM{err: errors.New("llm unavailable")}
	g := NewBatchGrader(fake, 5, 1, discard())

	verdicts := g.GradeBatch(context.Background(), "question", docs(4))
	require.Len(t, verdicts, 4)
	for i, v := range verdicts {
		assert.Equal(t, i, v.Index)
		assert.True(t, v.IsRelevant, "failed batches keep all documents")
		assert.Equal(t, DefaultConfidence, v.Confidence)
	}
}

func TestGradeBatchLenientFallbackOnGarbage(t *testing.T) {
	fake := &fakeLLM{responses: []string{"I cannot grade these documents."}}
	g := NewBatchGrader(fake, 5, 1, discard())

	verdicts := g.GradeBatch(context.Background(), "question", docs(2))
	require.Len(t, verdicts, 2)
	assert.True(t, verdicts[0].IsRelevant)
	assert.True(t, verdicts[1].IsRelevant)
}

func TestGradeBatchHandlesCodeFences(t *testing.T) {
	fake := &fakeLLM{responses: []string{
		"```json\n{\"scores\": [{\"document_index\": 0, \"is_relevant\": false, \"confidence\": 0.2}]}\n```",
	}}
	g := NewBatchGrader(fake, 5, 1, discard())

	verdicts := g.GradeBatch(context.Background(), "question", docs(1))
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].IsRelevant)
}

func TestGradeSplitsIntoBatchesAndRemapsIndices(t *testing.T) {
	// Every batch call returns relevant verdicts with batch-local indices.
	fake := &fakeLLM{responses: []string{
		`{"scores": [
			{"document_index": 0, "is_relevant": true, "confidence": 0.9},
			{"document_index": 1, "is_relevant": true, "confidence": 0.8}
		]}`,
	}}
	g := NewBatchGrader(fake, 2, 1, discard())

	verdicts := g.Grade(context.Background(), "question", docs(4))
	require.Len(t, verdicts, 4)
	assert.Equal(t, 2, fake.calls, "4 documents with batch size 2 means 2 calls")
	for i, v := range verdicts {
		assert.Equal(t, i, v.Index, "indices are re-mapped to the global list")
	}
}

func TestGradeTruncatesLongDocuments(t *testing.T) {
	fake := &fakeLLM{responses: []string{
		`{"scores": [{"document_index": 0, "is_relevant": true, "confidence": 0.9}]}`,
	}}
	g := NewBatchGrader(fake, 5, 1, discard())

	long := store.Document{Content: strings.Repeat("x", 2000)}
	g.GradeBatch(context.Background(), "question", []store.Document{long})

	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "...")
	assert.Less(t, len(fake.prompts[0]), 1200)
}

func TestGradeTruncatesOnRuneBoundary(t *testing.T) {
	fake := &fakeLLM{responses: []string{
		`{"scores": [{"document_index": 0, "is_relevant": true, "confidence": 0.9}]}`,
	}}
	g := NewBatchGrader(fake, 5, 1, discard())

	// Multi-byte runes laid out so the cut would land mid-rune.
	long := store.Document{Content: strings.Repeat("日本語テキスト", 200)}
	g.GradeBatch(context.Background(), "question", []store.Document{long})

	require.Len(t, fake.prompts, 1)
	assert.True(t, utf8.ValidString(fake.prompts[0]), "truncation must not split a rune")
	assert.Contains(t, fake.prompts[0], "...")
}

func TestVerificationGradersPresumeAcceptanceOnFailure(t *testing.T) {
	fake := &fakeLLM{err: errors.New("down")}

	h := NewHallucinationGrader(fake, discard())
	assert.True(t, h.Grounded(context.Background(), docs(1), "some answer"))

	a := NewAnswerGrader(fake, discard())
	assert.True(t, a.Addresses(context.Background(), "question", "some answer"))
}

func TestVerificationGradersParseVerdicts(t *testing.T) {
	h := NewHallucinationGrader(&fakeLLM{responses: []string{"No"}}, discard())
	assert.False(t, h.Grounded(context.Background(), docs(1), "made up answer"))

	a := NewAnswerGrader(&fakeLLM{responses: []string{"yes, it does"}}, discard())
	assert.True(t, a.Addresses(context.Background(), "question", "answer"))
}

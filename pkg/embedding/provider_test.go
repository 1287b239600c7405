package embedding

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerateHonorsContextCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server arms its background read and can
		// observe the client disconnect, cancelling r.Context().
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	provider := NewOllamaProvider(srv.URL, "nomic-embed-text")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := provider.Generate(ctx, "hang forever", "SEMANTIC_SIMILARITY")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Generate did not return after context cancellation")
	}
}

func TestOpenAIGenerateHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	provider := NewOpenAIProvider(srv.URL, "test-key", "text-embedding-3-small")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Generate(ctx, "never sent", "RETRIEVAL_QUERY")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProvidersUseBoundedHTTPClients(t *testing.T) {
	ollama := NewOllamaProvider("", "").(*OllamaProvider)
	assert.Greater(t, ollama.Client.Timeout, time.Duration(0))

	openai := NewOpenAIProvider("", "key", "").(*OpenAIProvider)
	assert.Greater(t, openai.Client.Timeout, time.Duration(0))
}

func TestOllamaGenerateParsesAndNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding": [3.0, 4.0]}`))
	}))
	defer srv.Close()

	provider := NewOllamaProvider(srv.URL, "nomic-embed-text")

	res, err := provider.Generate(context.Background(), "hello", "SEMANTIC_SIMILARITY")
	require.NoError(t, err)
	require.Len(t, res.Embedding.Values, 2)
	assert.InDelta(t, 0.6, res.Embedding.Values[0], 1e-5)
	assert.InDelta(t, 0.8, res.Embedding.Values[1], 1e-5)
}

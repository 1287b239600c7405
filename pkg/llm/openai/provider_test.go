package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai-docs-helper/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSerializesLowercaseWireKeys(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, "gpt-4o-mini", 5*time.Second)
	got, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	messages, ok := captured["messages"].([]interface{})
	require.True(t, ok, "request body has a messages array")
	require.Len(t, messages, 2)

	first, ok := messages[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "be brief", first["content"])
	assert.NotContains(t, first, "Role")
	assert.NotContains(t, first, "Content")

	assert.Equal(t, "gpt-4o-mini", captured["model"])
}

func TestChatMapsModelRoleToAssistant(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL, "gpt-4o-mini", 5*time.Second)
	_, err := p.Chat(context.Background(), []llm.Message{{Role: "model", Content: "earlier turn"}})
	require.NoError(t, err)

	messages := captured["messages"].([]interface{})
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "assistant", first["role"])
}

func TestChatReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("bad-key", srv.URL, "gpt-4o-mini", 5*time.Second)
	_, err := p.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

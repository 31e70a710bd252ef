package integration

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"ai-docqa-be/pkg/embedding"
	"ai-docqa-be/pkg/llm"
	"ai-docqa-be/pkg/llm/ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaBaseURL(t *testing.T) string {
	t.Helper()
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		t.Skipf("Skipping integration test: Ollama not reachable at %s", baseURL)
	}
	resp.Body.Close()
	return baseURL
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestOllamaEmbedding(t *testing.T) {
	baseURL := ollamaBaseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	provider := embedding.NewOllamaProvider(baseURL, envOr("EMBEDDING_MODEL", "nomic-embed-text"))
	a, err := provider.Generate(ctx, "The invoice is due in thirty days.", embedding.TaskRetrievalDocument)
	require.NoError(t, err)
	b, err := provider.Generate(ctx, "When is the invoice due?", embedding.TaskRetrievalQuery)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	assert.Greater(t, embedding.Cosine(a, b), 0.3)
}

func TestOllamaStream(t *testing.T) {
	baseURL := ollamaBaseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	provider := ollama.NewOllamaProvider(baseURL, envOr("LLM_MODEL", "llama3"))
	chunks, err := provider.Stream(ctx, []llm.Message{
		{Role: "system", Content: "Answer in one short sentence."},
		{Role: "user", Content: "What colour is the sky on a clear day?"},
	}, llm.WithMaxTokens(40))
	require.NoError(t, err)

	var answer strings.Builder
	for c := range chunks {
		require.NoError(t, c.Err)
		answer.WriteString(c.Text)
	}
	assert.NotEmpty(t, strings.TrimSpace(answer.String()))
}

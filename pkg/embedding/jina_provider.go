package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-docqa-be/pkg/apperr"
)

const defaultJinaURL = "https://api.jina.ai/v1/embeddings"

type JinaProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ EmbeddingProvider = &JinaProvider{}

type jinaRequest struct {
	Model string   `json:"model"`
	Task  string   `json:"task,omitempty"`
	Input []string `json:"input"`
}

type jinaResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewJinaProvider(apiKey, baseURL, model string) *JinaProvider {
	if baseURL == "" {
		baseURL = defaultJinaURL
	}
	if model == "" {
		model = "jina-embeddings-v2-base-en"
	}
	return &JinaProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func jinaTask(t TaskType) string {
	switch t {
	case TaskRetrievalQuery:
		return "retrieval.query"
	case TaskRetrievalDocument:
		return "retrieval.passage"
	default:
		return ""
	}
}

func (p *JinaProvider) Generate(ctx context.Context, text string, taskType TaskType) ([]float32, error) {
	// Jina takes a batch of inputs; we always send one.
	jsonData, err := json.Marshal(jinaRequest{
		Model: p.model,
		Task:  jinaTask(taskType),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransport("jina", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport("jina", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("jina", resp.StatusCode, string(bodyBytes))
	}

	var jinaResp jinaResponse
	if err := json.Unmarshal(bodyBytes, &jinaResp); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindEmbedding, Reason: apperr.ReasonProviderUnavailable, Message: "decode jina response", Cause: err}
	}
	if jinaResp.Error != nil {
		return nil, &apperr.Error{Kind: apperr.KindEmbedding, Reason: apperr.ReasonProviderUnavailable, Message: "jina: " + jinaResp.Error.Message}
	}
	if len(jinaResp.Data) == 0 || len(jinaResp.Data[0].Embedding) == 0 {
		return nil, &apperr.Error{Kind: apperr.KindEmbedding, Reason: apperr.ReasonProviderUnavailable, Message: "empty embeddings from jina"}
	}

	return jinaResp.Data[0].Embedding, nil
}

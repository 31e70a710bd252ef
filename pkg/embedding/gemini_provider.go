package embedding

import (
	"context"
	"errors"
	"fmt"

	"ai-docqa-be/pkg/apperr"

	"google.golang.org/genai"
)

const defaultGeminiEmbeddingModel = "gemini-embedding-001"

// GeminiProvider embeds through the Gemini API with a fixed output dimensionality.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int32
}

var _ EmbeddingProvider = &GeminiProvider{}

func NewGeminiProvider(ctx context.Context, apiKey, model string, dimension int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiProvider{
		client:    client,
		model:     model,
		dimension: int32(dimension),
	}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, text string, taskType TaskType) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{
		TaskType: string(taskType),
	}
	if p.dimension > 0 {
		dim := p.dimension
		cfg.OutputDimensionality = &dim
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, classifyStatus("gemini", apiErr.Code, apiErr.Message)
		}
		return nil, classifyTransport("gemini", err)
	}

	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, &apperr.Error{Kind: apperr.KindEmbedding, Reason: apperr.ReasonProviderUnavailable, Message: "gemini returned no embedding"}
	}

	values := result.Embeddings[0].Values
	if p.dimension > 0 && len(values) != int(p.dimension) {
		return nil, &apperr.Error{
			Kind:    apperr.KindEmbedding,
			Reason:  apperr.ReasonProviderUnavailable,
			Message: fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", p.dimension, len(values)),
		}
	}

	// Truncated gemini embeddings are not unit length.
	return Normalize(values), nil
}

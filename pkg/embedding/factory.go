package embedding

import (
	"context"
	"fmt"
	"time"
)

type Config struct {
	Provider   string // "ollama", "gemini" or "jina"
	Model      string
	Dimension  int
	BaseURL    string
	APIKey     string
	RPS        float64
	QueryCache time.Duration
}

// New builds the configured provider and layers the throttle and query cache
// on top of it.
func New(ctx context.Context, cfg Config) (EmbeddingProvider, error) {
	var (
		p   EmbeddingProvider
		err error
	)

	switch cfg.Provider {
	case "", "ollama":
		p = NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case "gemini":
		p, err = NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.Dimension)
	case "jina":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("jina api key is required")
		}
		p = NewJinaProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RPS > 0 {
		p = NewThrottledProvider(p, cfg.RPS)
	}
	if cfg.QueryCache > 0 {
		p = NewCachedProvider(p, cfg.QueryCache)
	}
	return p, nil
}

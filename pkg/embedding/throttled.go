package embedding

import (
	"context"

	"ai-docqa-be/pkg/apperr"

	"golang.org/x/time/rate"
)

// ThrottledProvider caps outbound requests so a large ingestion does not trip
// the provider's own rate limit.
type ThrottledProvider struct {
	next    EmbeddingProvider
	limiter *rate.Limiter
}

var _ EmbeddingProvider = &ThrottledProvider{}

func NewThrottledProvider(next EmbeddingProvider, rps float64) *ThrottledProvider {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &ThrottledProvider{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *ThrottledProvider) Generate(ctx context.Context, text string, taskType TaskType) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindEmbedding, Reason: apperr.ReasonTimeout, Message: "waiting for embedding quota", Cause: err}
	}
	return p.next.Generate(ctx, text, taskType)
}

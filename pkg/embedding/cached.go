package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider memoizes query embeddings. Document embeddings pass through
// since each segment is embedded once per ingestion.
type CachedProvider struct {
	next  EmbeddingProvider
	cache *cache.Cache
}

var _ EmbeddingProvider = &CachedProvider{}

func NewCachedProvider(next EmbeddingProvider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func cacheKey(text string, taskType TaskType) string {
	sum := sha256.Sum256([]byte(text))
	return string(taskType) + ":" + hex.EncodeToString(sum[:])
}

func (p *CachedProvider) Generate(ctx context.Context, text string, taskType TaskType) ([]float32, error) {
	if taskType != TaskRetrievalQuery {
		return p.next.Generate(ctx, text, taskType)
	}

	key := cacheKey(text, taskType)
	if v, found := p.cache.Get(key); found {
		return v.([]float32), nil
	}

	vec, err := p.next.Generate(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(key, vec)
	return vec, nil
}

// Len is the number of live cache entries.
func (p *CachedProvider) Len() int {
	return p.cache.ItemCount()
}

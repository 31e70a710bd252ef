package embedding

import (
	"context"
)

// TaskType hints the provider about how the text will be used. Providers
// without task-aware models ignore it.
type TaskType string

const (
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    TaskType = "RETRIEVAL_QUERY"
)

// EmbeddingProvider converts text into a fixed-length vector.
// Failures are *apperr.Error of kind embedding with reason
// provider_unavailable, rate_limited or timeout.
type EmbeddingProvider interface {
	Generate(ctx context.Context, text string, taskType TaskType) ([]float32, error)
}

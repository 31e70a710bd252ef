package contract

import (
	"context"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/specification"

	"github.com/google/uuid"
)

type DocumentRepository interface {
	Create(ctx context.Context, document *entity.Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Document, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// ClaimPending moves a document from pending to processing only if it is
	// still pending, recording token as the holder of the claim. It reports
	// false when another worker got there first or the document no longer
	// exists.
	ClaimPending(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error)
	// MarkCompleted and MarkFailed only apply to a document in processing whose
	// claim is still held by token, and report false otherwise (for example
	// after it was deleted or requeued mid-run).
	MarkCompleted(ctx context.Context, id uuid.UUID, token uuid.UUID, chunkCount int, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, token uuid.UUID, detail string, now time.Time) (bool, error)
	// RequeueStale resets documents stuck in processing since before cutoff
	// back to pending, dropping their claims, and returns their ids.
	RequeueStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

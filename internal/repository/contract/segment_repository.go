package contract

import (
	"context"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/specification"

	"github.com/google/uuid"
)

type SegmentRepository interface {
	// ReplaceForDocument swaps the full segment set of one document in a single
	// atomic step: readers see either the old set or the new one.
	ReplaceForDocument(ctx context.Context, documentId uuid.UUID, segments []*entity.Segment) error
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Segment, error)
	CountByDocumentId(ctx context.Context, documentId uuid.UUID) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	// SearchSimilar returns up to limit segments of one document by cosine
	// similarity, highest first, ties by ascending segment index.
	SearchSimilar(ctx context.Context, documentId uuid.UUID, embedding []float32, limit int) ([]*entity.ScoredSegment, error)
}

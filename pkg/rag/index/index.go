// Package index is the vector index over document segments. It is one
// component partitioned by document id; the storage backend is whatever
// SegmentRepository it is given.
package index

import (
	"context"
	"fmt"
	"sort"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/contract"
	"ai-docqa-be/pkg/apperr"

	"github.com/google/uuid"
)

type Stats struct {
	TotalRecords int64 `json:"total_records"`
}

type Index struct {
	repo contract.SegmentRepository
}

func New(repo contract.SegmentRepository) *Index {
	return &Index{repo: repo}
}

// In returns the index bound to repo, typically the segment repository of
// an open unit of work.
func (i *Index) In(repo contract.SegmentRepository) *Index {
	return &Index{repo: repo}
}

// UpsertAll replaces the document's records with segments. Either all of
// them become visible or none do.
func (i *Index) UpsertAll(ctx context.Context, documentID uuid.UUID, segments []*entity.Segment) error {
	dim := -1
	for _, s := range segments {
		if len(s.Embedding) == 0 {
			return apperr.Newf(apperr.KindIndexing, "segment %d has no embedding", s.Index)
		}
		if dim >= 0 && len(s.Embedding) != dim {
			return apperr.Newf(apperr.KindIndexing, "segment %d has dimension %d, expected %d", s.Index, len(s.Embedding), dim)
		}
		dim = len(s.Embedding)
	}

	if err := i.repo.ReplaceForDocument(ctx, documentID, segments); err != nil {
		return apperr.Wrap(apperr.KindIndexing, "write vector records", err)
	}
	return nil
}

// Search returns the k most similar records of one document, highest score
// first and ties by ascending segment index. k is clamped to [0, count].
func (i *Index) Search(ctx context.Context, documentID uuid.UUID, query []float32, k int) ([]*entity.ScoredSegment, error) {
	if k <= 0 {
		return []*entity.ScoredSegment{}, nil
	}

	results, err := i.repo.SearchSimilar(ctx, documentID, query, k)
	if err != nil {
		return nil, fmt.Errorf("search vector records: %w", err)
	}
	if results == nil {
		return []*entity.ScoredSegment{}, nil
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Segment.Index < results[b].Segment.Index
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteDocument drops every record of the document. Deleting an unknown
// document is not an error.
func (i *Index) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return i.repo.DeleteByDocumentId(ctx, documentID)
}

func (i *Index) Count(ctx context.Context, documentID uuid.UUID) (int, error) {
	n, err := i.repo.CountByDocumentId(ctx, documentID)
	return int(n), err
}

func (i *Index) Stats(ctx context.Context) (Stats, error) {
	n, err := i.repo.CountAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalRecords: n}, nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/contract"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/pkg/embedding"

	"github.com/google/uuid"
)

type SegmentRepository struct {
	store   *Store
	journal *journal
}

var _ contract.SegmentRepository = &SegmentRepository{}

func NewSegmentRepository(store *Store) *SegmentRepository {
	return &SegmentRepository{store: store}
}

func segmentField(s *entity.Segment, field string) (any, bool) {
	switch field {
	case "segment_index":
		return s.Index, true
	case "created_at":
		return s.CreatedAt, true
	case "chunk_length":
		return s.Length, true
	}
	return nil, false
}

// ReplaceForDocument builds the new partition outside the lock and swaps it in.
func (r *SegmentRepository) ReplaceForDocument(ctx context.Context, documentId uuid.UUID, segments []*entity.Segment) error {
	now := time.Now()
	seen := make(map[int]struct{}, len(segments))
	next := make([]*entity.Segment, 0, len(segments))
	for _, seg := range segments {
		if _, dup := seen[seg.Index]; dup {
			return fmt.Errorf("duplicate segment index %d for document %s", seg.Index, documentId)
		}
		seen[seg.Index] = struct{}{}

		cp := cloneSegment(seg)
		cp.DocumentId = documentId
		if cp.Id == uuid.Nil {
			cp.Id = uuid.New()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		next = append(next, cp)
	}
	sort.Slice(next, func(i, j int) bool { return next[i].Index < next[j].Index })

	if err := ctx.Err(); err != nil {
		return err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.segments[documentId]
	if len(next) == 0 {
		delete(s.segments, documentId)
	} else {
		s.segments[documentId] = next
	}
	r.journal.record(func() {
		if had {
			s.segments[documentId] = prev
		} else {
			delete(s.segments, documentId)
		}
	})
	return nil
}

func (r *SegmentRepository) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.segments[documentId]
	if !had {
		return nil
	}
	delete(s.segments, documentId)
	r.journal.record(func() { s.segments[documentId] = prev })
	return nil
}

func (r *SegmentRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Segment, error) {
	q, err := parseSpecs(specs)
	if err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	out := []*entity.Segment{}
	collect := func(segs []*entity.Segment) {
		for _, seg := range segs {
			if q.matchID(seg.Id) {
				out = append(out, cloneSegment(seg))
			}
		}
	}
	if q.documentID != nil {
		collect(r.store.segments[*q.documentID])
	} else {
		for _, segs := range r.store.segments {
			collect(segs)
		}
	}
	r.store.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DocumentId != out[j].DocumentId {
			return out[i].DocumentId.String() < out[j].DocumentId.String()
		}
		return out[i].Index < out[j].Index
	})
	return orderAndPage(out, q, segmentField)
}

func (r *SegmentRepository) CountByDocumentId(ctx context.Context, documentId uuid.UUID) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return int64(len(r.store.segments[documentId])), nil
}

func (r *SegmentRepository) CountAll(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var n int64
	for _, segs := range r.store.segments {
		n += int64(len(segs))
	}
	return n, nil
}

// SearchSimilar is a brute-force cosine scan over one document's partition.
func (r *SegmentRepository) SearchSimilar(ctx context.Context, documentId uuid.UUID, queryVector []float32, limit int) ([]*entity.ScoredSegment, error) {
	if limit <= 0 {
		return []*entity.ScoredSegment{}, nil
	}

	r.store.mu.RLock()
	partition := r.store.segments[documentId]
	scored := make([]*entity.ScoredSegment, 0, len(partition))
	for _, seg := range partition {
		scored = append(scored, &entity.ScoredSegment{
			Segment: cloneSegment(seg),
			Score:   embedding.Cosine(queryVector, seg.Embedding),
		})
	}
	r.store.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Segment.Index < scored[j].Segment.Index
	})
	if limit < len(scored) {
		scored = scored[:limit]
	}
	return scored, nil
}

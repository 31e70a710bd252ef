package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/contract"
	"ai-docqa-be/internal/repository/specification"

	"github.com/google/uuid"
)

type DocumentRepository struct {
	store   *Store
	journal *journal
}

var _ contract.DocumentRepository = &DocumentRepository{}

func NewDocumentRepository(store *Store) *DocumentRepository {
	return &DocumentRepository{store: store}
}

func documentField(d *entity.Document, field string) (any, bool) {
	switch field {
	case "created_at":
		return d.CreatedAt, true
	case "updated_at":
		return d.UpdatedAt, true
	case "processed_at":
		return d.ProcessedAt, true
	case "original_name":
		return d.OriginalName, true
	case "status":
		return string(d.Status), true
	case "file_size":
		return d.FileSize, true
	}
	return nil, false
}

func (r *DocumentRepository) Create(ctx context.Context, document *entity.Document) error {
	if document.Id == uuid.Nil {
		document.Id = uuid.New()
	}
	if document.CreatedAt.IsZero() {
		document.CreatedAt = time.Now()
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[document.Id]; exists {
		return fmt.Errorf("memory: document %s already exists", document.Id)
	}
	id := document.Id
	s.documents[id] = cloneDocument(document)
	r.journal.record(func() { delete(s.documents, id) })
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.documents[id]
	if !ok {
		return nil
	}
	delete(s.documents, id)
	r.journal.record(func() { s.documents[id] = prev })
	return nil
}

func (r *DocumentRepository) find(specs []specification.Specification) ([]*entity.Document, error) {
	q, err := parseSpecs(specs)
	if err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	var out []*entity.Document
	for _, d := range r.store.documents {
		if !q.matchID(d.Id) {
			continue
		}
		if q.status != nil && d.Status != *q.status {
			continue
		}
		out = append(out, cloneDocument(d))
	}
	r.store.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Id.String() < out[j].Id.String()
	})
	return orderAndPage(out, q, documentField)
}

func (r *DocumentRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Document, error) {
	docs, err := r.find(specs)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (r *DocumentRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error) {
	docs, err := r.find(specs)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*entity.Document{}
	}
	return docs, nil
}

func (r *DocumentRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	docs, err := r.find(specs)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// transition is the compare-and-swap on status: mutate runs only when the
// document exists, is in from and, for a claimed document, is held by token.
func (r *DocumentRepository) transition(id uuid.UUID, from entity.ProcessingStatus, token uuid.UUID, now time.Time, mutate func(d *entity.Document)) bool {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.documents[id]
	if !ok || d.Status != from || d.ClaimToken != token {
		return false
	}
	prev := cloneDocument(d)
	mutate(d)
	d.UpdatedAt = &now
	r.journal.record(func() { s.documents[id] = prev })
	return true
}

func (r *DocumentRepository) ClaimPending(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error) {
	return r.transition(id, entity.StatusPending, uuid.Nil, now, func(d *entity.Document) {
		d.Status = entity.StatusProcessing
		d.ClaimToken = token
		started := now
		d.ProcessingStartedAt = &started
		d.ErrorDetail = ""
	}), nil
}

func (r *DocumentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, token uuid.UUID, chunkCount int, now time.Time) (bool, error) {
	return r.transition(id, entity.StatusProcessing, token, now, func(d *entity.Document) {
		d.Status = entity.StatusCompleted
		d.ClaimToken = uuid.Nil
		d.ChunkCount = chunkCount
		processed := now
		d.ProcessedAt = &processed
	}), nil
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id uuid.UUID, token uuid.UUID, detail string, now time.Time) (bool, error) {
	return r.transition(id, entity.StatusProcessing, token, now, func(d *entity.Document) {
		d.Status = entity.StatusFailed
		d.ClaimToken = uuid.Nil
		d.ChunkCount = 0
		d.ErrorDetail = detail
		processed := now
		d.ProcessedAt = &processed
	}), nil
}

func (r *DocumentRepository) RequeueStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, d := range s.documents {
		if d.Status != entity.StatusProcessing || d.ProcessingStartedAt == nil || !d.ProcessingStartedAt.Before(cutoff) {
			continue
		}
		prev := cloneDocument(d)
		d.Status = entity.StatusPending
		d.ClaimToken = uuid.Nil
		d.ProcessingStartedAt = nil
		docID := id
		r.journal.record(func() { s.documents[docID] = prev })
		ids = append(ids, id)
	}
	return ids, nil
}

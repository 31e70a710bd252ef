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

type ChatSessionRepository struct {
	store   *Store
	journal *journal
}

var _ contract.ChatSessionRepository = &ChatSessionRepository{}

func NewChatSessionRepository(store *Store) *ChatSessionRepository {
	return &ChatSessionRepository{store: store}
}

func sessionField(s *entity.ChatSession, field string) (any, bool) {
	switch field {
	case "created_at":
		return s.CreatedAt, true
	case "updated_at":
		return s.UpdatedAt, true
	case "title":
		return s.Title, true
	}
	return nil, false
}

func (r *ChatSessionRepository) Create(ctx context.Context, session *entity.ChatSession) error {
	if session.Id == uuid.Nil {
		session.Id = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.Id]; exists {
		return fmt.Errorf("memory: chat session %s already exists", session.Id)
	}
	id := session.Id
	s.sessions[id] = cloneSession(session)
	r.journal.record(func() { delete(s.sessions, id) })
	return nil
}

func (r *ChatSessionRepository) Update(ctx context.Context, session *entity.ChatSession) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.sessions[session.Id]
	if !ok {
		return fmt.Errorf("memory: chat session %s not found", session.Id)
	}
	id := session.Id
	s.sessions[id] = cloneSession(session)
	r.journal.record(func() { s.sessions[id] = prev })
	return nil
}

func (r *ChatSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	r.journal.record(func() { s.sessions[id] = prev })
	return nil
}

func (r *ChatSessionRepository) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.DocumentId != documentId {
			continue
		}
		prev, sessID := sess, id
		delete(s.sessions, id)
		r.journal.record(func() { s.sessions[sessID] = prev })
	}
	return nil
}

func (r *ChatSessionRepository) find(specs []specification.Specification) ([]*entity.ChatSession, error) {
	q, err := parseSpecs(specs)
	if err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	out := []*entity.ChatSession{}
	for _, sess := range r.store.sessions {
		if !q.matchID(sess.Id) {
			continue
		}
		if q.documentID != nil && sess.DocumentId != *q.documentID {
			continue
		}
		out = append(out, cloneSession(sess))
	}
	r.store.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Id.String() < out[j].Id.String()
	})
	return orderAndPage(out, q, sessionField)
}

func (r *ChatSessionRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	out, err := r.find(specs)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

func (r *ChatSessionRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatSession, error) {
	return r.find(specs)
}

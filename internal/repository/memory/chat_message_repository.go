package memory

import (
	"context"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/contract"
	"ai-docqa-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ChatMessageRepository struct {
	store   *Store
	journal *journal
}

var _ contract.ChatMessageRepository = &ChatMessageRepository{}

func NewChatMessageRepository(store *Store) *ChatMessageRepository {
	return &ChatMessageRepository{store: store}
}

func messageField(m *entity.ChatMessage, field string) (any, bool) {
	switch field {
	case "created_at":
		return m.CreatedAt, true
	case "role":
		return m.Role, true
	}
	return nil, false
}

func (r *ChatMessageRepository) Create(ctx context.Context, message *entity.ChatMessage) error {
	if message.Id == uuid.Nil {
		message.Id = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sessID := message.ChatSessionId
	prev := s.messages[sessID]
	next := make([]*entity.ChatMessage, len(prev), len(prev)+1)
	copy(next, prev)
	s.messages[sessID] = append(next, cloneMessage(message))
	r.journal.record(func() {
		if prev == nil {
			delete(s.messages, sessID)
			return
		}
		s.messages[sessID] = prev
	})
	return nil
}

func (r *ChatMessageRepository) DeleteBySessionIds(ctx context.Context, sessionIds []uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range sessionIds {
		prev, ok := s.messages[id]
		if !ok {
			continue
		}
		sessID := id
		delete(s.messages, id)
		r.journal.record(func() { s.messages[sessID] = prev })
	}
	return nil
}

// find returns messages in insertion order per session unless an OrderBy says otherwise.
func (r *ChatMessageRepository) find(specs []specification.Specification) ([]*entity.ChatMessage, error) {
	q, err := parseSpecs(specs)
	if err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	out := []*entity.ChatMessage{}
	collect := func(msgs []*entity.ChatMessage) {
		for _, m := range msgs {
			if q.matchID(m.Id) {
				out = append(out, cloneMessage(m))
			}
		}
	}
	if q.sessionID != nil {
		collect(r.store.messages[*q.sessionID])
	} else {
		for _, msgs := range r.store.messages {
			collect(msgs)
		}
	}
	r.store.mu.RUnlock()

	return orderAndPage(out, q, messageField)
}

func (r *ChatMessageRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	return r.find(specs)
}

func (r *ChatMessageRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	out, err := r.find(specs)
	if err != nil {
		return 0, err
	}
	return int64(len(out)), nil
}

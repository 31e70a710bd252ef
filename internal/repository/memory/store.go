package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/specification"

	"github.com/google/uuid"
)

// Store is the shared in-process state behind the memory repositories. All
// repositories built from one Store see the same data.
type Store struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]*entity.Document
	segments  map[uuid.UUID][]*entity.Segment // by document id, ordered by index
	sessions  map[uuid.UUID]*entity.ChatSession
	messages  map[uuid.UUID][]*entity.ChatMessage // by session id, insertion order

	// txSem admits one unit of work at a time.
	txSem chan struct{}
}

func NewStore() *Store {
	return &Store{
		documents: make(map[uuid.UUID]*entity.Document),
		segments:  make(map[uuid.UUID][]*entity.Segment),
		sessions:  make(map[uuid.UUID]*entity.ChatSession),
		messages:  make(map[uuid.UUID][]*entity.ChatMessage),
		txSem:     make(chan struct{}, 1),
	}
}

// journal collects inverse operations for a unit of work. Entries are
// recorded and replayed with Store.mu held.
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	if j != nil {
		j.undo = append(j.undo, fn)
	}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// query is the subset of specifications the memory backend understands.
type query struct {
	ids        map[uuid.UUID]struct{}
	status     *entity.ProcessingStatus
	documentID *uuid.UUID
	sessionID  *uuid.UUID
	orders     []specification.OrderBy
	page       *specification.Pagination
}

func parseSpecs(specs []specification.Specification) (*query, error) {
	q := &query{}
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			q.restrictIDs([]uuid.UUID{s.ID})
		case specification.ByIDs:
			q.restrictIDs(s.IDs)
		case specification.ByStatus:
			st := s.Status
			q.status = &st
		case specification.ByDocumentID:
			id := s.DocumentID
			q.documentID = &id
		case specification.ByChatSessionID:
			id := s.ChatSessionID
			q.sessionID = &id
		case specification.OrderBy:
			q.orders = append(q.orders, s)
		case specification.Pagination:
			p := s
			q.page = &p
		case specification.ForUpdate:
			// units of work are already serialized
		default:
			return nil, fmt.Errorf("memory: unsupported specification %T", spec)
		}
	}
	return q, nil
}

func (q *query) restrictIDs(ids []uuid.UUID) {
	next := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if q.ids == nil {
			next[id] = struct{}{}
			continue
		}
		if _, ok := q.ids[id]; ok {
			next[id] = struct{}{}
		}
	}
	q.ids = next
}

func (q *query) matchID(id uuid.UUID) bool {
	if q.ids == nil {
		return true
	}
	_, ok := q.ids[id]
	return ok
}

// fieldFunc returns the sortable value of a named column, or false when the
// column is unknown to the entity.
type fieldFunc[T any] func(item T, field string) (any, bool)

// orderAndPage sorts items by the query's OrderBy specs (after a default
// order already applied by the caller) and then applies pagination.
func orderAndPage[T any](items []T, q *query, field fieldFunc[T]) ([]T, error) {
	if len(q.orders) > 0 {
		for _, o := range q.orders {
			if len(items) > 0 {
				if _, ok := field(items[0], strings.ToLower(o.Field)); !ok {
					return nil, fmt.Errorf("memory: unsupported order field %q", o.Field)
				}
			}
		}
		sort.SliceStable(items, func(i, j int) bool {
			for _, o := range q.orders {
				a, _ := field(items[i], strings.ToLower(o.Field))
				b, _ := field(items[j], strings.ToLower(o.Field))
				c := compareValues(a, b)
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.page != nil {
		start := q.page.Offset
		if start < 0 {
			start = 0
		}
		if start >= len(items) {
			return items[:0], nil
		}
		items = items[start:]
		if q.page.Limit > 0 && q.page.Limit < len(items) {
			items = items[:q.page.Limit]
		}
	}
	return items, nil
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case time.Time:
		y := b.(time.Time)
		return x.Compare(y)
	case *time.Time:
		y := b.(*time.Time)
		switch {
		case x == nil && y == nil:
			return 0
		case x == nil:
			return -1
		case y == nil:
			return 1
		}
		return x.Compare(*y)
	case int:
		y := b.(int)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case int64:
		y := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	}
	return 0
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneDocument(d *entity.Document) *entity.Document {
	cp := *d
	cp.ProcessingStartedAt = cloneTime(d.ProcessingStartedAt)
	cp.ProcessedAt = cloneTime(d.ProcessedAt)
	cp.UpdatedAt = cloneTime(d.UpdatedAt)
	return &cp
}

func cloneSegment(s *entity.Segment) *entity.Segment {
	cp := *s
	if s.Embedding != nil {
		cp.Embedding = append([]float32(nil), s.Embedding...)
	}
	return &cp
}

func cloneSession(s *entity.ChatSession) *entity.ChatSession {
	cp := *s
	cp.UpdatedAt = cloneTime(s.UpdatedAt)
	return &cp
}

func cloneMessage(m *entity.ChatMessage) *entity.ChatMessage {
	cp := *m
	if m.Grounding != nil {
		cp.Grounding = append([]entity.GroundingSegment(nil), m.Grounding...)
	}
	return &cp
}

package status

import (
	"context"
	"sync"
	"time"

	"ai-docqa-be/internal/entity"

	"github.com/google/uuid"
)

// Event is one status transition of a document.
type Event struct {
	DocumentID  uuid.UUID               `json:"document_id"`
	Status      entity.ProcessingStatus `json:"status"`
	ChunkCount  int                     `json:"chunk_count"`
	ErrorDetail string                  `json:"error_message,omitempty"`
	OccurredAt  time.Time               `json:"occurred_at"`
}

// Notifier receives every status transition the pipeline makes.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

const subscriberBuffer = 8

type subscriber struct {
	ch chan Event
}

// Broker fans status events out to in-process watchers of a document.
// Subscriptions end when the document reaches a terminal status, when it is
// closed, or when the subscriber's context ends.
type Broker struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[*subscriber]struct{}
}

var _ Notifier = &Broker{}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uuid.UUID]map[*subscriber]struct{})}
}

func (b *Broker) Subscribe(ctx context.Context, documentID uuid.UUID) <-chan Event {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	set, ok := b.subs[documentID]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subs[documentID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(documentID, sub)
	}()
	return sub.ch
}

func (b *Broker) remove(documentID uuid.UUID, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[documentID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, documentID)
	}
}

// Publish never blocks. A subscriber that has fallen behind loses its oldest
// queued event so the latest status always gets through.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[ev.DocumentID]
	for sub := range set {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
		if ev.Status.IsTerminal() {
			close(sub.ch)
			delete(set, sub)
		}
	}
	if len(set) == 0 {
		delete(b.subs, ev.DocumentID)
	}
}

func (b *Broker) Notify(_ context.Context, ev Event) {
	b.Publish(ev)
}

// Close ends every subscription of a document, e.g. after deletion.
func (b *Broker) Close(documentID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[documentID] {
		close(sub.ch)
	}
	delete(b.subs, documentID)
}

func (b *Broker) Subscribers(documentID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[documentID])
}

// Multi forwards each event to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

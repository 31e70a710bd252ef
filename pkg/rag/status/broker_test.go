package status

import (
	"context"
	"testing"
	"time"

	"ai-docqa-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Event) []entity.ProcessingStatus {
	var out []entity.ProcessingStatus
	for ev := range ch {
		out = append(out, ev.Status)
	}
	return out
}

func TestBroker_DeliversUntilTerminal(t *testing.T) {
	b := NewBroker()
	doc := uuid.New()
	ch := b.Subscribe(context.Background(), doc)

	b.Publish(Event{DocumentID: uuid.New(), Status: entity.StatusProcessing})
	b.Publish(Event{DocumentID: doc, Status: entity.StatusProcessing})
	b.Publish(Event{DocumentID: doc, Status: entity.StatusCompleted, ChunkCount: 3})

	assert.Equal(t, []entity.ProcessingStatus{entity.StatusProcessing, entity.StatusCompleted}, drain(ch))
	assert.Zero(t, b.Subscribers(doc))

	// Publishing after the terminal event is harmless.
	b.Publish(Event{DocumentID: doc, Status: entity.StatusFailed})
}

func TestBroker_ContextCancelEndsSubscription(t *testing.T) {
	b := NewBroker()
	doc := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, doc)
	require.Equal(t, 1, b.Subscribers(doc))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	assert.Zero(t, b.Subscribers(doc))
}

func TestBroker_SlowSubscriberKeepsLatest(t *testing.T) {
	b := NewBroker()
	doc := uuid.New()
	ch := b.Subscribe(context.Background(), doc)

	for i := 0; i < subscriberBuffer*3; i++ {
		b.Publish(Event{DocumentID: doc, Status: entity.StatusProcessing, ChunkCount: i})
	}
	b.Publish(Event{DocumentID: doc, Status: entity.StatusFailed, ErrorDetail: "boom"})

	var last Event
	for ev := range ch {
		last = ev
	}
	assert.Equal(t, entity.StatusFailed, last.Status)
	assert.Equal(t, "boom", last.ErrorDetail)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	doc := uuid.New()
	ch1 := b.Subscribe(context.Background(), doc)
	ch2 := b.Subscribe(context.Background(), doc)

	b.Close(doc)
	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
}

type recorder struct{ events []Event }

func (r *recorder) Notify(_ context.Context, ev Event) { r.events = append(r.events, ev) }

func TestMulti(t *testing.T) {
	a, c := &recorder{}, &recorder{}
	Multi{a, nil, c}.Notify(context.Background(), Event{Status: entity.StatusPending})
	assert.Len(t, a.events, 1)
	assert.Len(t, c.events, 1)
}

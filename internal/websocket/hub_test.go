package websocket

import (
	"encoding/json"
	"testing"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/pkg/rag/status"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(hub *Hub, documentId uuid.UUID, buffer int) *Client {
	c := &Client{Hub: hub, DocumentID: documentId, Send: make(chan []byte, buffer)}
	hub.register(c)
	return c
}

func decode(t *testing.T, raw []byte) Frame {
	t.Helper()
	var f Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func TestHub_SendTargetsDocument(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	docA, docB := uuid.New(), uuid.New()
	a1 := newClient(hub, docA, 4)
	a2 := newClient(hub, docA, 4)
	b := newClient(hub, docB, 4)

	hub.Send(docA, status.Event{DocumentID: docA, Status: entity.StatusProcessing})

	for _, c := range []*Client{a1, a2} {
		frame := decode(t, <-c.Send)
		assert.Equal(t, "status", frame.Type)
		assert.Equal(t, docA, frame.Data.Id)
		assert.Equal(t, "processing", frame.Data.Status)
	}
	assert.Empty(t, b.Send)
	assert.Equal(t, 2, hub.Clients(docA))
}

func TestHub_TerminalStatusDisconnects(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	doc := uuid.New()
	c := newClient(hub, doc, 4)

	hub.Send(doc, status.Event{DocumentID: doc, Status: entity.StatusFailed, ErrorDetail: "extraction: corrupt file"})

	frame := decode(t, <-c.Send)
	assert.Equal(t, "failed", frame.Data.Status)
	assert.Equal(t, "extraction: corrupt file", frame.Data.ErrorMessage)
	_, open := <-c.Send
	assert.False(t, open)
	assert.Zero(t, hub.Clients(doc))

	// Unregistering after the hub dropped the client is harmless.
	hub.unregister(c)
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	doc := uuid.New()
	slow := newClient(hub, doc, 1)
	fast := newClient(hub, doc, 4)

	hub.Send(doc, status.Event{DocumentID: doc, Status: entity.StatusPending})
	hub.Send(doc, status.Event{DocumentID: doc, Status: entity.StatusProcessing})

	assert.Equal(t, 1, hub.Clients(doc))
	assert.Len(t, fast.Send, 2)
	<-slow.Send
	_, open := <-slow.Send
	assert.False(t, open)
}

func TestHub_ClusterMessages(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	doc := uuid.New()
	c := newClient(hub, doc, 4)

	frame := []byte(`{"type":"status","data":{"id":"` + doc.String() + `","status":"completed","chunk_count":3}}`)
	own, _ := json.Marshal(clusterMessage{Origin: hub.origin, DocumentId: doc.String(), Message: frame})
	other, _ := json.Marshal(clusterMessage{Origin: "another-instance", DocumentId: doc.String(), Terminal: true, Message: frame})

	hub.handleClusterMessage(own)
	assert.Empty(t, c.Send, "own publishes are skipped")

	hub.handleClusterMessage([]byte("garbage"))
	hub.handleClusterMessage(other)

	got := decode(t, <-c.Send)
	assert.Equal(t, 3, got.Data.ChunkCount)
	assert.Zero(t, hub.Clients(doc))
}

func TestHub_QueueSnapshot(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	doc := uuid.New()
	c := newClient(hub, doc, 4)

	hub.queue(c, []byte(`{"type":"status"}`), true)
	assert.Equal(t, `{"type":"status"}`, string(<-c.Send))
	_, open := <-c.Send
	assert.False(t, open)

	// A client that already left gets nothing.
	hub.queue(c, []byte(`{}`), false)
}

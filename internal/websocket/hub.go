package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"ai-docqa-be/internal/dto"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/pkg/rag/status"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries status frames between instances.
const ClusterChannel = "cluster_events"

// Frame is what status clients receive.
type Frame struct {
	Type string                      `json:"type"`
	Data *dto.DocumentStatusResponse `json:"data"`
}

type clusterMessage struct {
	Origin     string          `json:"origin"`
	DocumentId string          `json:"document_id"`
	Terminal   bool            `json:"terminal"`
	Message    json.RawMessage `json:"message"`
}

type Hub struct {
	// Registered clients: DocumentID -> connections watching it
	clients map[uuid.UUID]map[*Client]struct{}

	mu sync.Mutex

	// Redis connection for cross-instance communication, nil when not configured
	rdb *redis.Client
	// origin tags our own publishes so the subscriber can skip them
	origin string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		rdb:     rdb,
		origin:  uuid.NewString(),
		logger:  log,
	}
}

// Run relays frames from other instances until ctx ends, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}
	<-ctx.Done()

	h.mu.Lock()
	for documentId, set := range h.clients {
		for c := range set {
			close(c.Send)
		}
		delete(h.clients, documentId)
	}
	h.mu.Unlock()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.DocumentID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.DocumentID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("Hub", "Client registered", map[string]interface{}{"document_id": c.DocumentID.String()})
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked closes the client's queue once; later calls are no-ops.
func (h *Hub) removeLocked(c *Client) {
	set, ok := h.clients[c.DocumentID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.Send)
	if len(set) == 0 {
		delete(h.clients, c.DocumentID)
	}
}

// Clients returns how many connections watch the document on this instance.
func (h *Hub) Clients(documentId uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[documentId])
}

// EncodeStatus renders a status frame.
func EncodeStatus(res *dto.DocumentStatusResponse) []byte {
	data, _ := json.Marshal(Frame{Type: "status", Data: res})
	return data
}

// Send delivers a status transition to local watchers and to the other
// instances. Watchers are disconnected after a terminal status.
func (h *Hub) Send(documentId uuid.UUID, ev status.Event) {
	data := EncodeStatus(&dto.DocumentStatusResponse{
		Id:           documentId,
		Status:       string(ev.Status),
		ChunkCount:   ev.ChunkCount,
		ErrorMessage: ev.ErrorDetail,
	})
	terminal := ev.Status.IsTerminal()

	h.deliver(documentId, data, terminal)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{
			Origin:     h.origin,
			DocumentId: documentId.String(),
			Terminal:   terminal,
			Message:    data,
		})
		if err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to publish to redis", map[string]interface{}{"document_id": documentId.String(), "error": err})
		}
	}
}

func (h *Hub) deliver(documentId uuid.UUID, data []byte, terminal bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[documentId] {
		select {
		case c.Send <- data:
			if terminal {
				h.removeLocked(c)
			}
		default:
			h.logger.Warn("Hub", "Client send buffer full, disconnecting", map[string]interface{}{"document_id": documentId.String()})
			h.removeLocked(c)
		}
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleClusterMessage([]byte(msg.Payload))
		}
	}
}

func (h *Hub) handleClusterMessage(raw []byte) {
	var payload clusterMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err})
		return
	}
	if payload.Origin == h.origin {
		return
	}
	documentId, err := uuid.Parse(payload.DocumentId)
	if err != nil {
		return
	}
	h.deliver(documentId, payload.Message, payload.Terminal)
}

// queue hands one frame to a single client.
func (h *Hub) queue(c *Client, data []byte, terminal bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.DocumentID][c]; !ok {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
	if terminal {
		h.removeLocked(c)
	}
}

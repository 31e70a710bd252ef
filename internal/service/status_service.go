package service

import (
	"context"
	"fmt"
	"strings"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/pkg/events"
	pktNats "ai-docqa-be/pkg/nats"
	"ai-docqa-be/pkg/rag/status"

	"github.com/google/uuid"
)

// StatusDelivery pushes status events to connected websocket clients.
// Typically implemented by the WebSocket Hub.
type StatusDelivery interface {
	Send(documentId uuid.UUID, ev status.Event)
}

// StatusPublisher forwards pipeline transitions to the event bus. Without a
// bus, or when publishing fails, it delivers straight to the websocket hub.
type StatusPublisher struct {
	events   EventPublisher
	delivery StatusDelivery
	logger   logger.ILogger
}

var _ status.Notifier = &StatusPublisher{}

func NewStatusPublisher(eventPublisher EventPublisher, delivery StatusDelivery, log logger.ILogger) *StatusPublisher {
	return &StatusPublisher{events: eventPublisher, delivery: delivery, logger: log}
}

func (p *StatusPublisher) Notify(ctx context.Context, ev status.Event) {
	if p.events != nil {
		err := p.events.Publish(ctx, toBusEvent(ev))
		if err == nil {
			return
		}
		p.logger.Warn("StatusPublisher", "Failed to publish status event, delivering locally", map[string]interface{}{
			"document_id": ev.DocumentID.String(),
			"status":      string(ev.Status),
			"error":       err,
		})
	}
	if p.delivery != nil {
		p.delivery.Send(ev.DocumentID, ev)
	}
}

func toBusEvent(ev status.Event) events.BaseEvent {
	payload := map[string]interface{}{
		"document_id": ev.DocumentID.String(),
		"status":      string(ev.Status),
		"chunk_count": ev.ChunkCount,
	}
	if ev.ErrorDetail != "" {
		payload["error_message"] = ev.ErrorDetail
	}
	return events.BaseEvent{
		Type:       events.DocumentStatusType(string(ev.Status)),
		Data:       payload,
		OccurredAt: ev.OccurredAt,
	}
}

// fromBusEvent is the inverse of toBusEvent. ok is false for events that are
// not status transitions.
func fromBusEvent(event events.Event) (status.Event, bool, error) {
	typeCode := strings.TrimPrefix(event.EventType(), pktNats.SubjectPrefix)
	if !strings.HasPrefix(typeCode, events.DocumentStatusPrefix) {
		return status.Event{}, false, nil
	}
	st := entity.ProcessingStatus(strings.ToLower(strings.TrimPrefix(typeCode, events.DocumentStatusPrefix)))
	if !st.IsValid() {
		return status.Event{}, false, nil
	}

	payload := event.Payload()
	rawID, _ := payload["document_id"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return status.Event{}, false, fmt.Errorf("status event %s without a valid document_id: %w", typeCode, err)
	}

	ev := status.Event{DocumentID: id, Status: st, OccurredAt: event.Timestamp()}
	switch n := payload["chunk_count"].(type) {
	case float64:
		ev.ChunkCount = int(n)
	case int:
		ev.ChunkCount = n
	}
	ev.ErrorDetail, _ = payload["error_message"].(string)
	return ev, true, nil
}

// EventSubscriber attaches a handler to the event bus.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject string, durableName string, handler pktNats.EventHandler) error
}

// StatusRelayService listens to the event bus and hands status transitions
// to the websocket hub, which fans them out across instances.
type StatusRelayService struct {
	subscriber EventSubscriber
	delivery   StatusDelivery
	logger     logger.ILogger
}

func NewStatusRelayService(sub EventSubscriber, delivery StatusDelivery, log logger.ILogger) *StatusRelayService {
	return &StatusRelayService{
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

func (s *StatusRelayService) Start(ctx context.Context) error {
	err := s.subscriber.Subscribe(ctx, pktNats.SubjectPrefix+">", "status-relay-worker", s.handleEvent)
	if err != nil {
		s.logger.Error("StatusRelay", "Failed to start status subscriber", map[string]interface{}{"error": err})
		return err
	}
	s.logger.Info("StatusRelay", "Status relay started, listening to events.>", nil)
	return nil
}

func (s *StatusRelayService) handleEvent(ctx context.Context, event events.Event) error {
	ev, ok, err := fromBusEvent(event)
	if err != nil {
		// Redelivery cannot fix a malformed payload.
		s.logger.Warn("StatusRelay", "Dropping malformed status event", map[string]interface{}{"type": event.EventType(), "error": err})
		return nil
	}
	if !ok {
		s.logger.Debug("StatusRelay", "Ignoring event", map[string]interface{}{"type": event.EventType()})
		return nil
	}

	s.delivery.Send(ev.DocumentID, ev)
	return nil
}

package service

import (
	"context"
	"encoding/json"

	"ai-docqa-be/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

type IPublisherService interface {
	Publish(ctx context.Context, payload []byte) error
	// PublishIngest enqueues one ingestion job.
	PublishIngest(ctx context.Context, documentId uuid.UUID) error
}

type publisherService struct {
	topicName string
	publisher message.Publisher
}

func NewPublisherService(topicName string, publisher message.Publisher) IPublisherService {
	return &publisherService{
		topicName: topicName,
		publisher: publisher,
	}
}

func (s *publisherService) Publish(ctx context.Context, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return s.publisher.Publish(s.topicName, msg)
}

func (s *publisherService) PublishIngest(ctx context.Context, documentId uuid.UUID) error {
	payload, err := json.Marshal(dto.PublishIngestMessage{DocumentId: documentId})
	if err != nil {
		return err
	}
	return s.Publish(ctx, payload)
}

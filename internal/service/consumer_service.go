package service

import (
	"context"
	"encoding/json"

	"ai-docqa-be/internal/dto"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/pkg/rag/ingest"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type IConsumerService interface {
	// Consume runs the ingestion workers until ctx ends.
	Consume(ctx context.Context) error
}

// IngestRunner processes one document end to end.
type IngestRunner interface {
	Run(ctx context.Context, documentId uuid.UUID) (ingest.Outcome, error)
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	pipeline   IngestRunner
	workers    int
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	pipeline IngestRunner,
	workers int,
	log logger.ILogger,
) IConsumerService {
	if workers < 1 {
		workers = 1
	}
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		pipeline:   pipeline,
		workers:    workers,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	// The subscription delivers one message at a time and waits for its ack,
	// so messages are acked once queued and the workers drain the queue.
	jobs := make(chan uuid.UUID, cs.workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for msg := range messages {
			cs.dispatch(gctx, msg, jobs)
		}
		return nil
	})

	for i := 0; i < cs.workers; i++ {
		worker := i
		g.Go(func() error {
			for id := range jobs {
				if gctx.Err() != nil {
					// Left pending; the sweeper enqueues it again.
					continue
				}
				cs.process(gctx, worker, id)
			}
			return nil
		})
	}

	cs.logger.Info("CONSUMER", "Ingestion workers started", map[string]interface{}{"workers": cs.workers, "topic": cs.topicName})
	return g.Wait()
}

func (cs *consumerService) dispatch(ctx context.Context, msg *message.Message, jobs chan<- uuid.UUID) {
	var payload dto.PublishIngestMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.DocumentId == uuid.Nil {
		cs.logger.Error("CONSUMER", "Dropping malformed ingestion job", map[string]interface{}{"message_id": msg.UUID, "error": err})
		msg.Ack()
		return
	}

	select {
	case jobs <- payload.DocumentId:
		msg.Ack()
	case <-ctx.Done():
		msg.Nack()
	}
}

func (cs *consumerService) process(ctx context.Context, worker int, id uuid.UUID) {
	details := map[string]interface{}{"document_id": id.String(), "worker": worker}

	outcome, err := cs.pipeline.Run(ctx, id)
	details["outcome"] = string(outcome)
	switch outcome {
	case ingest.OutcomeCompleted, ingest.OutcomeSkipped:
		cs.logger.Debug("CONSUMER", "Job finished", details)
	case ingest.OutcomeFailed:
		details["error"] = err
		cs.logger.Warn("CONSUMER", "Document failed", details)
	default:
		details["error"] = err
		cs.logger.Error("CONSUMER", "Job aborted", details)
	}
}

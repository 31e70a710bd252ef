package service

import (
	"context"
	"time"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// SweeperService recovers documents whose ingestion was lost: runs stuck in
// processing (a crashed or stopped worker) and pending documents whose job
// never reached a worker. Both are enqueued again; the atomic claim keeps a
// duplicate job harmless.
type SweeperService struct {
	cron       *cron.Cron
	uowFactory unitofwork.RepositoryFactory
	jobs       IPublisherService
	staleAfter time.Duration
	logger     logger.ILogger
	now        func() time.Time
}

func NewSweeperService(uowFactory unitofwork.RepositoryFactory, jobs IPublisherService, staleAfter time.Duration, log logger.ILogger) *SweeperService {
	return &SweeperService{
		cron:       cron.New(),
		uowFactory: uowFactory,
		jobs:       jobs,
		staleAfter: staleAfter,
		logger:     log,
		now:        time.Now,
	}
}

func (s *SweeperService) Start(schedule string) error {
	if s.staleAfter <= 0 {
		s.logger.Info("SWEEPER", "Stale recovery disabled", nil)
		return nil
	}

	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("SWEEPER", "Sweep failed", map[string]interface{}{"error": err})
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("SWEEPER", "Stale recovery scheduled", map[string]interface{}{"schedule": schedule, "stale_after": s.staleAfter.String()})
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *SweeperService) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep enqueues every document that has sat unprocessed since before the
// stale cutoff and returns their ids.
func (s *SweeperService) Sweep(ctx context.Context) ([]uuid.UUID, error) {
	cutoff := s.now().Add(-s.staleAfter)
	docs := s.uowFactory.NewUnitOfWork(ctx).DocumentRepository()

	requeued, err := docs.RequeueStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	pending, err := docs.FindAll(ctx, specification.ByStatus{Status: entity.StatusPending})
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(requeued))
	ids := make([]uuid.UUID, 0, len(requeued))
	for _, id := range requeued {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, doc := range pending {
		if _, ok := seen[doc.Id]; ok || !doc.CreatedAt.Before(cutoff) {
			continue
		}
		ids = append(ids, doc.Id)
	}

	for _, id := range ids {
		if err := s.jobs.PublishIngest(ctx, id); err != nil {
			return ids, err
		}
	}

	if len(ids) > 0 {
		s.logger.Warn("SWEEPER", "Re-enqueued stalled documents", map[string]interface{}{
			"requeued_from_processing": len(requeued),
			"total":                    len(ids),
		})
	}
	return ids, nil
}

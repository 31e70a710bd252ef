package service

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"ai-docqa-be/internal/dto"
	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/internal/repository/unitofwork"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/events"
	"ai-docqa-be/pkg/rag/status"
	"ai-docqa-be/pkg/storage"

	"github.com/google/uuid"
)

type IDocumentService interface {
	Submit(ctx context.Context, req *dto.SubmitDocumentRequest) (*dto.DocumentResponse, error)
	List(ctx context.Context) ([]*dto.DocumentResponse, error)
	Show(ctx context.Context, id uuid.UUID) (*dto.DocumentResponse, error)
	Status(ctx context.Context, id uuid.UUID) (*dto.DocumentStatusResponse, error)
	// WatchStatus yields the current status first, then every transition,
	// and closes once the document is completed or failed.
	WatchStatus(ctx context.Context, id uuid.UUID) (<-chan status.Event, error)
	// Delete removes the document with its segments, sessions, messages and
	// stored file. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id uuid.UUID) error
	Segments(ctx context.Context, id uuid.UUID) ([]*dto.SegmentResponse, error)
}

// EventPublisher sends domain events to the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type DocumentServiceConfig struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
}

type documentService struct {
	uowFactory unitofwork.RepositoryFactory
	files      storage.FileStore
	jobs       IPublisherService
	events     EventPublisher
	broker     *status.Broker
	logger     logger.ILogger
	cfg        DocumentServiceConfig
	now        func() time.Time
}

// NewDocumentService builds the document service. events may be nil when no
// event bus is configured.
func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	files storage.FileStore,
	jobs IPublisherService,
	eventPublisher EventPublisher,
	broker *status.Broker,
	log logger.ILogger,
	cfg DocumentServiceConfig,
) IDocumentService {
	return &documentService{
		uowFactory: uowFactory,
		files:      files,
		jobs:       jobs,
		events:     eventPublisher,
		broker:     broker,
		logger:     log,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (s *documentService) validate(req *dto.SubmitDocumentRequest) (name, ext string, err error) {
	name = filepath.Base(strings.TrimSpace(req.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", "", apperr.Validation("file name is required")
	}
	if len(req.Data) == 0 {
		return "", "", apperr.Validation("file is empty")
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(req.Data)) > s.cfg.MaxUploadBytes {
		return "", "", apperr.Newf(apperr.KindValidation, "file exceeds maximum size of %d MB", s.cfg.MaxUploadBytes/(1024*1024))
	}

	ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !slices.Contains(s.cfg.AllowedExtensions, ext) {
		return "", "", &apperr.Error{
			Kind:    apperr.KindValidation,
			Reason:  apperr.ReasonUnsupportedFormat,
			Message: fmt.Sprintf("file type %q is not allowed (allowed: %s)", ext, strings.Join(s.cfg.AllowedExtensions, ", ")),
		}
	}
	return name, ext, nil
}

func (s *documentService) Submit(ctx context.Context, req *dto.SubmitDocumentRequest) (*dto.DocumentResponse, error) {
	name, ext, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	storedName := id.String() + "." + ext
	path, err := s.files.Save(ctx, storedName, req.Data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store upload", err)
	}

	doc := &entity.Document{
		Id:           id,
		OriginalName: name,
		StoredName:   storedName,
		FilePath:     path,
		FileSize:     int64(len(req.Data)),
		FileType:     ext,
		Status:       entity.StatusPending,
		CreatedAt:    s.now(),
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.DocumentRepository().Create(ctx, doc); err != nil {
		_ = s.files.Delete(ctx, path)
		return nil, apperr.Wrap(apperr.KindInternal, "create document", err)
	}

	// A job that fails to enqueue is picked up again by the sweeper.
	if err := s.jobs.PublishIngest(ctx, id); err != nil {
		s.logger.Warn("DOCUMENT", "Failed to enqueue ingestion job", map[string]interface{}{"document_id": id.String(), "error": err})
	}

	s.publishEvent(ctx, events.DocumentUploaded, map[string]interface{}{
		"document_id":   id.String(),
		"original_name": name,
		"file_type":     ext,
		"file_size":     doc.FileSize,
	})

	s.logger.Info("DOCUMENT", "Document submitted", map[string]interface{}{
		"document_id": id.String(),
		"file_type":   ext,
		"file_size":   doc.FileSize,
	})
	return toDocumentResponse(doc), nil
}

func (s *documentService) publishEvent(ctx context.Context, eventType string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	ev := events.BaseEvent{Type: eventType, Data: payload, OccurredAt: s.now()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("DOCUMENT", "Failed to publish event", map[string]interface{}{"type": eventType, "error": err})
	}
}

func (s *documentService) find(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	doc, err := s.uowFactory.NewUnitOfWork(ctx).DocumentRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load document", err)
	}
	if doc == nil {
		return nil, apperr.NotFound("document")
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context) ([]*dto.DocumentResponse, error) {
	docs, err := s.uowFactory.NewUnitOfWork(ctx).DocumentRepository().FindAll(ctx,
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list documents", err)
	}

	res := make([]*dto.DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		res = append(res, toDocumentResponse(doc))
	}
	return res, nil
}

func (s *documentService) Show(ctx context.Context, id uuid.UUID) (*dto.DocumentResponse, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDocumentResponse(doc), nil
}

func (s *documentService) Status(ctx context.Context, id uuid.UUID) (*dto.DocumentStatusResponse, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return toStatusResponse(doc), nil
}

func (s *documentService) WatchStatus(ctx context.Context, id uuid.UUID) (<-chan status.Event, error) {
	// Subscribe before reading the snapshot so no transition falls in between.
	subCtx, cancel := context.WithCancel(ctx)
	sub := s.broker.Subscribe(subCtx, id)

	doc, err := s.find(ctx, id)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan status.Event, 1)
	go func() {
		defer close(out)
		defer cancel()

		select {
		case out <- snapshotEvent(doc):
		case <-ctx.Done():
			return
		}
		if doc.Status.IsTerminal() {
			return
		}
		for ev := range sub {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *documentService) Delete(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	doc, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "load document", err)
	}
	if doc == nil {
		return nil
	}

	if err := uow.Begin(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "begin transaction", err)
	}
	defer uow.Rollback()

	// Delete parents before children: pipeline commits and turns lock the
	// parent row before writing children.
	if err := uow.DocumentRepository().Delete(ctx, id); err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete document", err)
	}

	sessions, err := uow.ChatSessionRepository().FindAll(ctx, specification.ByDocumentID{DocumentID: id})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "load sessions", err)
	}
	if err := uow.ChatSessionRepository().DeleteByDocumentId(ctx, id); err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete sessions", err)
	}
	if len(sessions) > 0 {
		sessionIds := make([]uuid.UUID, len(sessions))
		for i, session := range sessions {
			sessionIds[i] = session.Id
		}
		if err := uow.ChatMessageRepository().DeleteBySessionIds(ctx, sessionIds); err != nil {
			return apperr.Wrap(apperr.KindInternal, "delete messages", err)
		}
	}
	if err := uow.SegmentRepository().DeleteByDocumentId(ctx, id); err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete segments", err)
	}
	if err := uow.Commit(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "commit delete", err)
	}

	if err := s.files.Delete(ctx, doc.FilePath); err != nil {
		s.logger.Warn("DOCUMENT", "Failed to delete stored file", map[string]interface{}{"document_id": id.String(), "path": doc.FilePath, "error": err})
	}
	s.broker.Close(id)
	s.publishEvent(ctx, events.DocumentDeleted, map[string]interface{}{"document_id": id.String()})

	s.logger.Info("DOCUMENT", "Document deleted", map[string]interface{}{"document_id": id.String(), "sessions": len(sessions)})
	return nil
}

func (s *documentService) Segments(ctx context.Context, id uuid.UUID) ([]*dto.SegmentResponse, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}

	segments, err := s.uowFactory.NewUnitOfWork(ctx).SegmentRepository().FindAll(ctx,
		specification.ByDocumentID{DocumentID: id},
		specification.OrderBy{Field: "segment_index"},
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list segments", err)
	}

	res := make([]*dto.SegmentResponse, 0, len(segments))
	for _, seg := range segments {
		res = append(res, &dto.SegmentResponse{
			Index:       seg.Index,
			Text:        seg.Text,
			Length:      seg.Length,
			StartOffset: seg.StartOffset,
			EndOffset:   seg.EndOffset,
		})
	}
	return res, nil
}

func toDocumentResponse(doc *entity.Document) *dto.DocumentResponse {
	return &dto.DocumentResponse{
		Id:           doc.Id,
		OriginalName: doc.OriginalName,
		FileType:     doc.FileType,
		FileSize:     doc.FileSize,
		Status:       string(doc.Status),
		ChunkCount:   doc.ChunkCount,
		ErrorMessage: doc.ErrorDetail,
		CreatedAt:    doc.CreatedAt,
		ProcessedAt:  doc.ProcessedAt,
	}
}

func toStatusResponse(doc *entity.Document) *dto.DocumentStatusResponse {
	return &dto.DocumentStatusResponse{
		Id:           doc.Id,
		Status:       string(doc.Status),
		ChunkCount:   doc.ChunkCount,
		ErrorMessage: doc.ErrorDetail,
	}
}

func snapshotEvent(doc *entity.Document) status.Event {
	at := doc.CreatedAt
	if doc.UpdatedAt != nil {
		at = *doc.UpdatedAt
	}
	return status.Event{
		DocumentID:  doc.Id,
		Status:      doc.Status,
		ChunkCount:  doc.ChunkCount,
		ErrorDetail: doc.ErrorDetail,
		OccurredAt:  at,
	}
}

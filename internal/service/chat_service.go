package service

import (
	"context"

	"ai-docqa-be/internal/dto"
	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/repository/specification"
	"ai-docqa-be/internal/repository/unitofwork"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/rag/session"

	"github.com/google/uuid"
)

type IChatService interface {
	// OpenSession resumes req.SessionId or starts a new session; created
	// reports which.
	OpenSession(ctx context.Context, req *dto.OpenSessionRequest) (res *dto.SessionResponse, created bool, err error)
	SendTurn(ctx context.Context, sessionId uuid.UUID, text string) (<-chan session.Event, error)
	ListSessions(ctx context.Context, documentId uuid.UUID) ([]*dto.SessionResponse, error)
	GetSession(ctx context.Context, sessionId uuid.UUID) (*dto.SessionDetailResponse, error)
	DeleteSession(ctx context.Context, sessionId uuid.UUID) error
}

type chatService struct {
	uowFactory unitofwork.RepositoryFactory
	engine     *session.Engine
}

func NewChatService(uowFactory unitofwork.RepositoryFactory, engine *session.Engine) IChatService {
	return &chatService{
		uowFactory: uowFactory,
		engine:     engine,
	}
}

func (c *chatService) OpenSession(ctx context.Context, req *dto.OpenSessionRequest) (*dto.SessionResponse, bool, error) {
	s, created, err := c.engine.OpenSession(ctx, req.DocumentId, req.SessionId)
	if err != nil {
		return nil, false, err
	}
	return toSessionResponse(s), created, nil
}

func (c *chatService) SendTurn(ctx context.Context, sessionId uuid.UUID, text string) (<-chan session.Event, error) {
	return c.engine.SendTurn(ctx, sessionId, text)
}

func (c *chatService) ListSessions(ctx context.Context, documentId uuid.UUID) ([]*dto.SessionResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	doc, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: documentId})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load document", err)
	}
	if doc == nil {
		return nil, apperr.NotFound("document")
	}

	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.ByDocumentID{DocumentID: documentId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list sessions", err)
	}

	res := make([]*dto.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		res = append(res, toSessionResponse(s))
	}
	return res, nil
}

func (c *chatService) GetSession(ctx context.Context, sessionId uuid.UUID) (*dto.SessionDetailResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	s, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load chat session", err)
	}
	if s == nil {
		return nil, apperr.NotFound("chat session")
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load messages", err)
	}

	res := &dto.SessionDetailResponse{
		SessionResponse: *toSessionResponse(s),
		Messages:        make([]*dto.MessageResponse, 0, len(messages)),
	}
	for _, m := range messages {
		res.Messages = append(res.Messages, &dto.MessageResponse{
			Id:        m.Id,
			Role:      m.Role,
			Content:   m.Content,
			Grounding: m.Grounding,
			CreatedAt: m.CreatedAt,
		})
	}
	return res, nil
}

func (c *chatService) DeleteSession(ctx context.Context, sessionId uuid.UUID) error {
	if c.engine.InFlight(sessionId) {
		return apperr.New(apperr.KindConcurrentTurnRejected, "a turn is in progress for this session")
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return apperr.Wrap(apperr.KindInternal, "begin transaction", err)
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteBySessionIds(ctx, []uuid.UUID{sessionId}); err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete messages", err)
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete chat session", err)
	}
	if err := uow.Commit(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "commit delete", err)
	}
	return nil
}

func toSessionResponse(s *entity.ChatSession) *dto.SessionResponse {
	return &dto.SessionResponse{
		Id:         s.Id,
		DocumentId: s.DocumentId,
		Title:      s.Title,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

package handler

import (
	"context"
	"sync"

	"ai-docqa-be/internal/dto"
	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/service"
	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/rag/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	FrameConnected      = "connected"
	FrameSession        = "session"
	FrameError          = "error"
	FrameDocumentStatus = "document_status"

	frameBuffer = 32
)

// ChatHandler runs chat turns over a websocket bound to one document.
type ChatHandler struct {
	chat      service.IChatService
	documents service.IDocumentService
	logger    logger.ILogger
}

func NewChatHandler(chat service.IChatService, documents service.IDocumentService, log logger.ILogger) *ChatHandler {
	return &ChatHandler{
		chat:      chat,
		documents: documents,
		logger:    log,
	}
}

func (h *ChatHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/chat/:documentId/ws", h.ServeWs)
}

func (h *ChatHandler) ServeWs(c *fiber.Ctx) error {
	documentId, err := uuid.Parse(c.Params("documentId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid document id")
	}
	st, err := h.documents.Status(c.UserContext(), documentId)
	if err != nil {
		return err
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, documentId, entity.ProcessingStatus(st.Status))
	})(c)
}

// chatConn owns the outbound side of one socket. Only the writer goroutine
// touches the connection for writes.
type chatConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	out    chan dto.ChatSocketFrame
	wg     sync.WaitGroup
}

func (cc *chatConn) emit(frame dto.ChatSocketFrame) bool {
	select {
	case cc.out <- frame:
		return true
	case <-cc.ctx.Done():
		return false
	}
}

func (cc *chatConn) writeLoop(done chan<- struct{}) {
	defer close(done)
	for frame := range cc.out {
		if cc.ctx.Err() != nil {
			continue
		}
		if err := cc.conn.WriteJSON(frame); err != nil {
			cc.cancel()
		}
	}
}

func (h *ChatHandler) serve(conn *websocket.Conn, documentId uuid.UUID, docStatus entity.ProcessingStatus) {
	// Closing the socket cancels this context, which aborts a running turn.
	ctx, cancel := context.WithCancel(context.Background())
	cc := &chatConn{conn: conn, ctx: ctx, cancel: cancel, out: make(chan dto.ChatSocketFrame, frameBuffer)}

	writerDone := make(chan struct{})
	go cc.writeLoop(writerDone)
	defer func() {
		cancel()
		cc.wg.Wait()
		close(cc.out)
		<-writerDone
	}()

	details := map[string]interface{}{"document_id": documentId.String()}
	h.logger.Info("ChatHandler", "Chat socket opened", details)

	cc.emit(dto.ChatSocketFrame{Type: FrameConnected, Content: "Connected to document chat"})
	if !docStatus.IsTerminal() {
		h.forwardDocumentStatus(cc, documentId)
	}

	var sessionId *uuid.UUID
	for {
		var req dto.ChatSocketRequest
		if err := conn.ReadJSON(&req); err != nil {
			break
		}

		current, err := h.resolveSession(ctx, cc, documentId, sessionId, req.SessionId)
		if err != nil {
			cc.emit(errorFrame(sessionId, err))
			continue
		}
		sessionId = current

		events, err := h.chat.SendTurn(ctx, *sessionId, req.Message)
		if err != nil {
			cc.emit(errorFrame(sessionId, err))
			continue
		}

		// Turns stream in the background so a second message during a
		// turn is read and rejected rather than queued.
		cc.wg.Add(1)
		go func() {
			defer cc.wg.Done()
			for ev := range events {
				cc.emit(toFrame(ev))
			}
		}()
	}

	h.logger.Info("ChatHandler", "Chat socket closed", details)
}

// resolveSession picks the session for a message: the one the client names,
// else the socket's current one, else a new session announced to the client.
func (h *ChatHandler) resolveSession(ctx context.Context, cc *chatConn, documentId uuid.UUID, current, requested *uuid.UUID) (*uuid.UUID, error) {
	if requested == nil && current != nil {
		return current, nil
	}
	if requested != nil && current != nil && *requested == *current {
		return current, nil
	}

	res, created, err := h.chat.OpenSession(ctx, &dto.OpenSessionRequest{DocumentId: documentId, SessionId: requested})
	if err != nil {
		return nil, err
	}
	id := res.Id
	if created {
		cc.emit(dto.ChatSocketFrame{Type: FrameSession, SessionId: &id, Content: res.Title})
	}
	return &id, nil
}

// forwardDocumentStatus relays processing transitions until the document is
// ready or failed, so the client knows when it can start asking.
func (h *ChatHandler) forwardDocumentStatus(cc *chatConn, documentId uuid.UUID) {
	watch, err := h.documents.WatchStatus(cc.ctx, documentId)
	if err != nil {
		h.logger.Warn("ChatHandler", "Cannot watch document status", map[string]interface{}{"document_id": documentId.String(), "error": err})
		return
	}

	cc.wg.Add(1)
	go func() {
		defer cc.wg.Done()
		for ev := range watch {
			cc.emit(dto.ChatSocketFrame{
				Type: FrameDocumentStatus,
				DocumentStatus: &dto.DocumentStatusResponse{
					Id:           ev.DocumentID,
					Status:       string(ev.Status),
					ChunkCount:   ev.ChunkCount,
					ErrorMessage: ev.ErrorDetail,
				},
			})
		}
	}()
}

func toFrame(ev session.Event) dto.ChatSocketFrame {
	sessionId := ev.SessionID
	frame := dto.ChatSocketFrame{
		Type:      string(ev.Type),
		SessionId: &sessionId,
		Content:   ev.Content,
		Grounding: ev.Grounding,
	}
	switch ev.Type {
	case session.EventComplete:
		messageId := ev.MessageID
		frame.MessageId = &messageId
	case session.EventError:
		frame.Code = string(ev.Code)
	}
	return frame
}

func errorFrame(sessionId *uuid.UUID, err error) dto.ChatSocketFrame {
	kind := apperr.KindOf(err)
	content := apperr.DetailOf(err)
	if kind == apperr.KindInternal {
		content = "Internal server error"
	}
	return dto.ChatSocketFrame{
		Type:      FrameError,
		SessionId: sessionId,
		Code:      string(kind),
		Content:   content,
	}
}

package handler

import (
	"context"

	"ai-docqa-be/internal/entity"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/service"
	internalWS "ai-docqa-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// StatusHandler pushes a document's processing status over a websocket.
type StatusHandler struct {
	documents service.IDocumentService
	hub       *internalWS.Hub
	logger    logger.ILogger
}

func NewStatusHandler(documents service.IDocumentService, hub *internalWS.Hub, log logger.ILogger) *StatusHandler {
	return &StatusHandler{
		documents: documents,
		hub:       hub,
		logger:    log,
	}
}

func (h *StatusHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/documents/:id/status/ws", h.ServeWs)
}

// ServeWs sends the current status, then every transition, and closes after
// completed or failed.
func (h *StatusHandler) ServeWs(c *fiber.Ctx) error {
	documentId, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid document id")
	}
	if _, err := h.documents.Status(c.UserContext(), documentId); err != nil {
		return err
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("StatusHandler", "Status stream opened", map[string]interface{}{"document_id": documentId.String()})
		internalWS.ServeWs(h.hub, conn, documentId, func() ([]byte, bool, error) {
			st, err := h.documents.Status(context.Background(), documentId)
			if err != nil {
				return nil, false, err
			}
			return internalWS.EncodeStatus(st), entity.ProcessingStatus(st.Status).IsTerminal(), nil
		})
		h.logger.Info("StatusHandler", "Status stream closed", map[string]interface{}{"document_id": documentId.String()})
	})(c)
}

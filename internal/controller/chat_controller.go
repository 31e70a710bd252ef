package controller

import (
	"ai-docqa-be/internal/dto"
	"ai-docqa-be/internal/pkg/serverutils"
	"ai-docqa-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	OpenSession(ctx *fiber.Ctx) error
	ListSessions(ctx *fiber.Ctx) error
	ShowSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
}

func NewChatController(service service.IChatService) IChatController {
	return &chatController{service: service}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Post("/sessions", c.OpenSession)
	h.Get("/sessions/:id", c.ShowSession)
	h.Delete("/sessions/:id", c.DeleteSession)
	h.Get("/:documentId/sessions", c.ListSessions)
}

func (c *chatController) OpenSession(ctx *fiber.Ctx) error {
	var req dto.OpenSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, created, err := c.service.OpenSession(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	if created {
		return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Chat session created", res))
	}
	return ctx.JSON(serverutils.SuccessResponse("Chat session resumed", res))
}

func (c *chatController) ListSessions(ctx *fiber.Ctx) error {
	documentId, err := paramID(ctx, "documentId")
	if err != nil {
		return err
	}

	res, err := c.service.ListSessions(ctx.UserContext(), documentId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get chat sessions", res))
}

func (c *chatController) ShowSession(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.GetSession(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get chat session", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.DeleteSession(ctx.UserContext(), id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Chat session deleted", nil))
}

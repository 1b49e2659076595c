package controller

import (
	"discussion-companion-be/internal/dto"
	"discussion-companion-be/internal/pkg/serverutils"
	"discussion-companion-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChitChatController interface {
	RegisterRoutes(r fiber.Router)
	GetPreferences(ctx *fiber.Ctx) error
	ToggleCategory(ctx *fiber.Ctx) error
	GetCategories(ctx *fiber.Ctx) error
	GetTopics(ctx *fiber.Ctx) error
	AddTopic(ctx *fiber.Ctx) error
	GenerateTopic(ctx *fiber.Ctx) error
	GetChats(ctx *fiber.Ctx) error
	SaveChat(ctx *fiber.Ctx) error
	ShowChat(ctx *fiber.Ctx) error
	AddNote(ctx *fiber.Ctx) error
	ExpandTopic(ctx *fiber.Ctx) error
}

type chitChatController struct {
	service  service.IChitChatService
	verifier serverutils.TokenVerifier
}

func NewChitChatController(service service.IChitChatService, verifier serverutils.TokenVerifier) IChitChatController {
	return &chitChatController{service: service, verifier: verifier}
}

func (c *chitChatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chitchat/v1")
	h.Use(serverutils.JwtMiddleware(c.verifier))
	h.Get("/preferences", c.GetPreferences)
	h.Put("/preferences/categories", c.ToggleCategory)
	h.Get("/categories", c.GetCategories)
	h.Get("/topics", c.GetTopics)
	h.Post("/topics", c.AddTopic)
	h.Post("/topics/generate", c.GenerateTopic)
	h.Get("/chats", c.GetChats)
	h.Post("/chats", c.SaveChat)
	h.Get("/chats/:id", c.ShowChat)
	h.Post("/chats/:id/notes", c.AddNote)
	h.Post("/chats/:id/expand", c.ExpandTopic)
}

func (c *chitChatController) GetPreferences(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := c.service.GetPreferences(ctx.Context(), user)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get preferences", res))
}

func (c *chitChatController) ToggleCategory(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	var req dto.ToggleCategoryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.ToggleCategory(ctx.Context(), user, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update preferences", res))
}

func (c *chitChatController) GetCategories(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := c.service.AllCategories(ctx.Context(), user)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get categories", res))
}

func (c *chitChatController) GetTopics(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := c.service.ListUserTopics(ctx.Context(), user)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get topics", res))
}

func (c *chitChatController) AddTopic(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	var req dto.AddTopicRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.AddCustomTopic(ctx.Context(), user, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success add topic", res))
}

func (c *chitChatController) GenerateTopic(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := c.service.GenerateTopic(ctx.Context(), user)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success generate topic", res))
}

func (c *chitChatController) GetChats(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := c.service.ListChats(ctx.Context(), user)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get chats", res))
}

func (c *chitChatController) SaveChat(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	var req dto.SaveChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SaveChat(ctx.Context(), user, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Chat saved", res))
}

func (c *chitChatController) ShowChat(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := c.service.GetChat(ctx.Context(), user, ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show chat", res))
}

func (c *chitChatController) AddNote(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	var req dto.AddNoteRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.AddNote(ctx.Context(), user, ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Note added", res))
}

func (c *chitChatController) ExpandTopic(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	res, err := c.service.ExpandTopic(ctx.Context(), user, ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Topic expanded", res))
}

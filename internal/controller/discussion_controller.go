package controller

import (
	"discussion-companion-be/internal/dto"
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/pkg/serverutils"
	"discussion-companion-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IDiscussionController interface {
	RegisterRoutes(r fiber.Router)
	State(ctx *fiber.Ctx) error
	Recent(ctx *fiber.Ctx) error
	Open(ctx *fiber.Ctx) error
	Back(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	RequestSuggestions(ctx *fiber.Ctx) error
	SaveNotes(ctx *fiber.Ctx) error
	SetEditing(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type discussionController struct {
	service  service.IDiscussionService
	verifier serverutils.TokenVerifier
}

func NewDiscussionController(service service.IDiscussionService, verifier serverutils.TokenVerifier) IDiscussionController {
	return &discussionController{service: service, verifier: verifier}
}

func (c *discussionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/discussion/v1")
	h.Use(serverutils.JwtMiddleware(c.verifier))
	h.Get("/state", c.State)
	h.Get("/recent", c.Recent)
	h.Post("/open", c.Open)
	h.Post("/back", c.Back)
	h.Post("/messages", c.SendMessage)
	h.Post("/suggestions", c.RequestSuggestions)
	h.Put("/notes", c.SaveNotes)
	h.Put("/editing", c.SetEditing)
	h.Delete("", c.Delete)
}

func currentUser(ctx *fiber.Ctx) (entity.Identity, error) {
	user, ok := serverutils.IdentityFrom(ctx)
	if !ok {
		return entity.Identity{}, fiber.ErrUnauthorized
	}
	return user, nil
}

func (c *discussionController) State(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.State(ctx.Context(), user)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get discussion state", res))
}

func (c *discussionController) Recent(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Recent(ctx.Context(), user)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get recent discussions", res))
}

func (c *discussionController) Open(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	var req dto.OpenDiscussionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Open(ctx.Context(), user, &req)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if res.Created {
		status = fiber.StatusCreated
	}
	return ctx.Status(status).JSON(serverutils.SuccessResponse("Success open discussion", res))
}

func (c *discussionController) Back(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Back(ctx.Context(), user)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success leave discussion", res))
}

func (c *discussionController) SendMessage(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SendMessage(ctx.Context(), user, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *discussionController) RequestSuggestions(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	var req dto.SuggestionsRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}

	res, err := c.service.RequestSuggestions(ctx.Context(), user, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success generate suggestions", res))
}

func (c *discussionController) SaveNotes(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	var req dto.SaveNotesRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SaveNotes(ctx.Context(), user, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Notes saved", res))
}

func (c *discussionController) SetEditing(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	var req dto.EditingRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	res, err := c.service.SetEditing(ctx.Context(), user, req.Active)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update editing state", res))
}

// Delete removes the open discussion only with ?confirm=true; anything else
// is treated as a declined confirmation.
func (c *discussionController) Delete(ctx *fiber.Ctx) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Delete(ctx.Context(), user, ctx.QueryBool("confirm", false))
	if err != nil {
		return err
	}
	message := "Discussion kept"
	if res.Deleted {
		message = "Discussion deleted"
	}
	return ctx.JSON(serverutils.SuccessResponse(message, res))
}

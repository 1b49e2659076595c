package controller

import (
	"net/url"
	"strings"

	"discussion-companion-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IOAuthController interface {
	RegisterRoutes(r fiber.Router)
	Login(ctx *fiber.Ctx) error
	Callback(ctx *fiber.Ctx) error
}

type oauthController struct {
	service     service.IOAuthService
	frontendURL string
}

func NewOAuthController(service service.IOAuthService, frontendURL string) IOAuthController {
	return &oauthController{service: service, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (c *oauthController) RegisterRoutes(r fiber.Router) {
	// e.g. /auth/v1/oauth/google
	h := r.Group("/auth/v1/oauth")
	h.Get("/:provider", c.Login)
	h.Get("/:provider/callback", c.Callback)
}

func (c *oauthController) Login(ctx *fiber.Ctx) error {
	loginURL, err := c.service.GetLoginURL(ctx.Params("provider"))
	if err != nil {
		return err
	}
	return ctx.Redirect(loginURL, fiber.StatusTemporaryRedirect)
}

func (c *oauthController) Callback(ctx *fiber.Ctx) error {
	code := ctx.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing code")
	}

	res, err := c.service.HandleCallback(ctx.Context(), ctx.Params("provider"), code, ctx.Query("state"))
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("token", res.Token)
	return ctx.Redirect(c.frontendURL+"/app?"+q.Encode(), fiber.StatusTemporaryRedirect)
}

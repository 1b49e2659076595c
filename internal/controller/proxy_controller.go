package controller

import (
	"discussion-companion-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
)

const proxyModule = "CompletionProxy"

// IProxyController forwards completion requests upstream with the
// server-held key, so clients never see it.
type IProxyController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
}

type proxyController struct {
	upstream string
	apiKey   string
	logger   logger.ILogger
}

func NewProxyController(upstream, apiKey string, log logger.ILogger) IProxyController {
	return &proxyController{upstream: upstream, apiKey: apiKey, logger: log}
}

func (c *proxyController) RegisterRoutes(r fiber.Router) {
	r.All("/chat", c.Chat)
}

// Chat checks the key before the method; upstream status and body pass
// through unchanged.
func (c *proxyController) Chat(ctx *fiber.Ctx) error {
	if c.apiKey == "" {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server configuration error: Gemini API Key not found.",
		})
	}
	if ctx.Method() != fiber.MethodPost {
		return ctx.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{"error": "Method not allowed"})
	}

	req := ctx.Request()
	req.Header.Del(fiber.HeaderAuthorization)
	req.Header.Del(fiber.HeaderCookie)
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.SetContentType(fiber.MIMEApplicationJSON)

	if err := proxy.Do(ctx, c.upstream); err != nil {
		c.logger.Error(proxyModule, "Proxy Error", map[string]interface{}{"error": err.Error()})
		ctx.Response().Reset()
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error during API proxy",
		})
	}
	ctx.Response().Header.Del(fiber.HeaderServer)
	return nil
}

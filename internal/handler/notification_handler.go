package handler

import (
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/internal/pkg/serverutils"
	internalWS "discussion-companion-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const notificationModule = "NotificationHandler"

// NotificationHandler upgrades authenticated clients to the push channel that
// carries discussion views, busy flags and remote notes.
type NotificationHandler struct {
	hub      *internalWS.Hub
	verifier serverutils.TokenVerifier
	logger   logger.ILogger
}

func NewNotificationHandler(hub *internalWS.Hub, verifier serverutils.TokenVerifier, log logger.ILogger) *NotificationHandler {
	return &NotificationHandler{hub: hub, verifier: verifier, logger: log}
}

func (h *NotificationHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/ws")
	g.Use(serverutils.JwtMiddleware(h.verifier))
	g.Get("/status", h.Status)
	g.Get("", h.ServeWs)
}

// ServeWs accepts the token as ?token= since browsers cannot set headers on
// an upgrade request.
func (h *NotificationHandler) ServeWs(c *fiber.Ctx) error {
	identity, ok := serverutils.IdentityFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID := identity.UserId
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info(notificationModule, "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info(notificationModule, "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}

// Status reports how many of the caller's devices hold a push connection on
// this instance.
func (h *NotificationHandler) Status(c *fiber.Ctx) error {
	identity, ok := serverutils.IdentityFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	return c.JSON(serverutils.SuccessResponse("Success get connection status", fiber.Map{
		"connections": h.hub.Connected(identity.UserId),
	}))
}

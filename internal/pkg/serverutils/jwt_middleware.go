package serverutils

import (
	"context"
	"strings"

	"discussion-companion-be/internal/entity"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalUserID = "user_id"
	LocalEmail  = "email"
)

// TokenVerifier resolves a bearer token to the signed-in identity.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*entity.Identity, error)
}

// JwtMiddleware accepts "Authorization: Bearer <token>" or, for websocket
// upgrades, a ?token= query parameter.
func JwtMiddleware(verifier TokenVerifier) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}

		identity, err := verifier.VerifyToken(ctx.Context(), tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		ctx.Locals(LocalUserID, identity.UserId)
		ctx.Locals(LocalEmail, identity.Email)
		return ctx.Next()
	}
}

func BearerToken(ctx *fiber.Ctx) string {
	if authHeader := ctx.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[7:]
	}
	return ctx.Query("token")
}

// IdentityFrom reads what JwtMiddleware stored.
func IdentityFrom(ctx *fiber.Ctx) (entity.Identity, bool) {
	userID, _ := ctx.Locals(LocalUserID).(string)
	if userID == "" {
		return entity.Identity{}, false
	}
	email, _ := ctx.Locals(LocalEmail).(string)
	return entity.Identity{UserId: userID, Email: email}, true
}

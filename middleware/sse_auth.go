// middleware/sse_auth.go
package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenValidator resolves an access token to a user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (string, error)
}

// TokenValidatorFunc adapts a plain function to TokenValidator.
type TokenValidatorFunc func(ctx context.Context, accessToken, deviceID string) (string, error)

func (f TokenValidatorFunc) ValidateToken(ctx context.Context, accessToken, deviceID string) (string, error) {
	return f(ctx, accessToken, deviceID)
}

// SSEAuthMiddleware identifies stream clients. A gateway-supplied X-User-ID
// wins; otherwise `token` and `device_id` query params are validated.
// With a nil validator only the header is accepted.
func SSEAuthMiddleware(validator TokenValidator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID := strings.TrimSpace(c.Get("X-User-ID")); userID != "" {
			c.Locals(LocalUserID, userID)
			return c.Next()
		}

		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if validator == nil || accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing identity: send X-User-ID or token and device_id",
			})
		}

		userID, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			logger.Warn("[SSEAuth] ❌ token rejected", zap.String("device_id", deviceID), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(LocalUserID, userID)
		return c.Next()
	}
}

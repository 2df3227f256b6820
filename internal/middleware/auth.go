package middleware

import (
	"github.com/crossguard/crossguard/internal/config"
	"github.com/crossguard/crossguard/internal/dto"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

// JWTProtected guards member-facing routes. The platform issues HMAC-signed
// tokens whose sub claim is the member identifier; reviewer and admin tiers
// layer their own checks on top of this.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
	})
}

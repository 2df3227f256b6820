package middleware

import (
	"github.com/crossguard/crossguard/internal/config"
	"github.com/crossguard/crossguard/internal/dto"
	"github.com/crossguard/crossguard/internal/logging"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminRequired checks the operator token header or the member's admin role
// in the reviewer directory.
func AdminRequired(db *gorm.DB, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.AdminToken != "" && c.Get("X-Admin-Token") == cfg.AdminToken {
			return c.Next()
		}

		tenantID := tenant.GetTenantID(c)
		memberID, err := tenant.GetMemberID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		var reviewer models.Reviewer
		err = db.Scopes(tenant.ForTenant(tenantID)).
			Where("member_id = ? AND role = ?", memberID, models.RoleAdmin).
			First(&reviewer).Error
		if err != nil {
			logging.SecurityEvent("admin_denied", tenantID, memberID, "path", c.Path())
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Admin access required",
			})
		}
		return c.Next()
	}
}

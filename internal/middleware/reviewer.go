package middleware

import (
	"github.com/crossguard/crossguard/internal/dto"
	"github.com/crossguard/crossguard/internal/logging"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ReviewerRequired admits only members holding the tenant's reviewer
// permission. A denied attempt is logged as a security event, not a crash.
func ReviewerRequired(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := tenant.GetTenantID(c)
		memberID, err := tenant.GetMemberID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		var reviewer models.Reviewer
		if err := db.Scopes(tenant.ForTenant(tenantID)).Where("member_id = ?", memberID).First(&reviewer).Error; err != nil {
			logging.SecurityEvent("permission_denied", tenantID, memberID, "path", c.Path())
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Reviewer permission required",
			})
		}

		c.Locals("reviewer_role", reviewer.Role)
		return c.Next()
	}
}

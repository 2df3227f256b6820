package handlers

import (
	"strconv"

	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/dto"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type AuditHandler struct {
	trail *audit.Trail
}

func NewAuditHandler(trail *audit.Trail) *AuditHandler {
	return &AuditHandler{trail: trail}
}

func (h *AuditHandler) History(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	sinceDays, _ := strconv.Atoi(c.Query("since_days", "30"))
	actionFilter := c.Query("action", "")

	entries, err := h.trail.History(tenantID, sinceDays, actionFilter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to read audit history",
		})
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"total":   len(entries),
	})
}

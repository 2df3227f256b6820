package handlers

import (
	"github.com/crossguard/crossguard/internal/dto"
	"github.com/crossguard/crossguard/internal/intake"
	"github.com/crossguard/crossguard/internal/relay"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type RelayHandler struct {
	relay  *relay.Relay
	intake *intake.Service
}

func NewRelayHandler(r *relay.Relay, intakeSvc *intake.Service) *RelayHandler {
	return &RelayHandler{relay: r, intake: intakeSvc}
}

// Relay forwards anonymous follow-up content. The member's identity is
// resolved into the pseudonym here and goes no further.
func (h *RelayHandler) Relay(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	memberID, err := tenant.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.RelayRequest
	if err := c.BodyParser(&req); err != nil || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "content is required", Field: "content",
		})
	}

	pseudonym, err := h.intake.SubmitterPseudonym(memberID, tenantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Relay unavailable",
		})
	}

	result, err := h.relay.Relay(c.Context(), pseudonym, req.Content)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Error: true, Message: "Relay delivery failed",
		})
	}
	if result.Status == relay.StatusNoActiveMapping {
		return c.Status(fiber.StatusGone).JSON(result)
	}
	return c.JSON(result)
}

// ForceExpire terminates a report's evidence mapping early.
func (h *RelayHandler) ForceExpire(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	moderatorID, err := tenant.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	found := h.relay.ForceExpire(c.Params("token"), tenantID, moderatorID, tenant.GetMemberName(c))
	return c.JSON(fiber.Map{"had_active_mapping": found})
}

package handlers

import (
	"errors"
	"strconv"

	"github.com/crossguard/crossguard/internal/autoaction"
	"github.com/crossguard/crossguard/internal/dto"
	"github.com/crossguard/crossguard/internal/reputation"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type ReputationHandler struct {
	agg      *reputation.Aggregator
	executor *autoaction.Executor
}

func NewReputationHandler(agg *reputation.Aggregator, executor *autoaction.Executor) *ReputationHandler {
	return &ReputationHandler{agg: agg, executor: executor}
}

func (h *ReputationHandler) Lookup(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	moderatorID, err := tenant.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	record, err := h.agg.Lookup(c.Params("target"), tenantID, moderatorID)
	if errors.Is(err, reputation.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "No reputation record for target",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: true, Message: "Reputation store unavailable",
		})
	}
	return c.JSON(record)
}

func (h *ReputationHandler) Evaluate(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	moderatorID, err := tenant.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	outcome, err := h.executor.Evaluate(c.Context(), c.Params("target"), tenantID, moderatorID, tenant.GetMemberName(c))
	if err != nil {
		if errors.Is(err, reputation.ErrStoreUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Error: true, Message: "Reputation store unavailable",
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to execute action",
		})
	}
	return c.JSON(outcome)
}

func (h *ReputationHandler) Stats(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	days, _ := strconv.Atoi(c.Query("days", "30"))

	stats, err := h.agg.GetTenantStats(tenantID, days)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: true, Message: "Reputation store unavailable",
		})
	}
	return c.JSON(stats)
}

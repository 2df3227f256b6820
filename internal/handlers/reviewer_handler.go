package handlers

import (
	"errors"

	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/dto"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ReviewerHandler struct {
	db    *gorm.DB
	trail *audit.Trail
}

func NewReviewerHandler(db *gorm.DB, trail *audit.Trail) *ReviewerHandler {
	return &ReviewerHandler{db: db, trail: trail}
}

func (h *ReviewerHandler) Grant(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	actorID, _ := tenant.GetMemberID(c)

	var req dto.GrantReviewerRequest
	if err := c.BodyParser(&req); err != nil || req.MemberID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "member_id is required", Field: "member_id",
		})
	}
	role := req.Role
	if role == "" {
		role = models.RoleReviewer
	}
	if role != models.RoleReviewer && role != models.RoleAdmin {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "role must be reviewer or admin", Field: "role",
		})
	}

	reviewer := models.Reviewer{
		TenantID:    tenantID,
		MemberID:    req.MemberID,
		DisplayName: req.DisplayName,
		Role:        role,
	}
	if err := h.db.Create(&reviewer).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: "Member is already a reviewer",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to grant reviewer permission",
		})
	}

	h.trail.Append(tenantID, audit.ActionReviewerGranted, actorID, tenant.GetMemberName(c),
		map[string]string{"member_id": req.MemberID, "role": role}, "")

	return c.Status(fiber.StatusCreated).JSON(reviewer)
}

func (h *ReviewerHandler) Revoke(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	actorID, _ := tenant.GetMemberID(c)
	memberID := c.Params("member_id")

	result := h.db.Scopes(tenant.ForTenant(tenantID)).
		Where("member_id = ?", memberID).
		Delete(&models.Reviewer{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to revoke reviewer permission",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Member is not a reviewer",
		})
	}

	h.trail.Append(tenantID, audit.ActionReviewerRevoked, actorID, tenant.GetMemberName(c),
		map[string]string{"member_id": memberID}, "")

	return c.JSON(fiber.Map{"message": "Reviewer permission revoked"})
}

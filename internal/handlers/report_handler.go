package handlers

import (
	"errors"
	"strconv"

	"github.com/crossguard/crossguard/internal/dto"
	"github.com/crossguard/crossguard/internal/intake"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/crossguard/crossguard/internal/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ReportHandler struct {
	db       *gorm.DB
	intake   *intake.Service
	sessions *validation.Manager
}

func NewReportHandler(db *gorm.DB, intakeSvc *intake.Service, sessions *validation.Manager) *ReportHandler {
	return &ReportHandler{db: db, intake: intakeSvc, sessions: sessions}
}

func (h *ReportHandler) Submit(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	memberID, err := tenant.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.SubmitReportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	report, err := h.intake.Submit(c.Context(), intake.Submission{
		SubmitterID:      memberID,
		TenantID:         tenantID,
		TargetIdentifier: req.TargetIdentifier,
		Category:         req.Category,
		Reason:           req.Reason,
		Evidence:         req.Evidence,
	})
	if err != nil {
		if rej, ok := intake.AsRejection(err); ok {
			return rejectionResponse(c, rej)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to submit report",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}

// rejectionResponse maps a typed intake rejection to a status code. The
// message never reveals anything about a prior report.
func rejectionResponse(c *fiber.Ctx, rej *intake.Rejection) error {
	switch rej.Reason {
	case intake.ReasonRateLimited:
		retryAfter := int(rej.RetryAfter.Seconds()) + 1
		c.Set("Retry-After", strconv.Itoa(retryAfter))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       true,
			"message":     rej.Message,
			"retry_after": retryAfter,
		})
	case intake.ReasonDuplicate:
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error: true, Message: rej.Message,
		})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: rej.Message, Field: rej.Field,
		})
	}
}

func (h *ReportHandler) List(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	status := c.Query("status", "")
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	if limit > 100 {
		limit = 100
	}

	var reports []models.Report
	var total int64

	query := h.db.Model(&models.Report{}).Scopes(tenant.ForTenant(tenantID))
	if status != "" {
		query = query.Where("status = ?", status)
	}
	query.Count(&total)

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reports).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to fetch reports",
		})
	}

	return c.JSON(fiber.Map{
		"reports": reports,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *ReportHandler) Vote(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	moderatorID, err := tenant.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if req.Vote != "approve" && req.Vote != "reject" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "vote must be approve or reject", Field: "vote",
		})
	}

	outcome, err := h.sessions.CastVote(c.Params("token"), tenantID, moderatorID, tenant.GetMemberName(c), req.Vote == "approve")
	if err != nil {
		return voteErrorResponse(c, err)
	}
	return c.JSON(outcome)
}

func (h *ReportHandler) Finalize(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	moderatorID, err := tenant.GetMemberID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.FinalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if req.Outcome != "validate" && req.Outcome != "reject" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "outcome must be validate or reject", Field: "outcome",
		})
	}

	err = h.sessions.FinalizeExpired(c.Params("token"), tenantID, moderatorID, tenant.GetMemberName(c), req.Outcome == "validate")
	if err != nil {
		return voteErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "Report finalized"})
}

func (h *ReportHandler) Session(c *fiber.Ctx) error {
	tenantID := tenant.GetTenantID(c)
	snapshot, err := h.sessions.Snapshot(c.Params("token"), tenantID)
	if err != nil {
		return voteErrorResponse(c, err)
	}
	return c.JSON(snapshot)
}

func voteErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, validation.ErrReportNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	case errors.Is(err, validation.ErrAlreadyFinalized),
		errors.Is(err, validation.ErrSessionExpired),
		errors.Is(err, validation.ErrNotExpired),
		errors.Is(err, validation.ErrNoEligibleVoters):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal error",
		})
	}
}

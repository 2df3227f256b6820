package handlers

import (
	"github.com/crossguard/crossguard/internal/database"
	"github.com/crossguard/crossguard/internal/relay"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db       *gorm.DB
	registry *tenant.Registry
	relay    *relay.Relay
}

func NewHealthHandler(db *gorm.DB, registry *tenant.Registry, r *relay.Relay) *HealthHandler {
	return &HealthHandler{db: db, registry: registry, relay: r}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	status := fiber.StatusOK
	if err := database.Ping(h.db); err != nil {
		dbStatus = "unavailable"
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status":          dbStatus,
		"tenants":         len(h.registry.All()),
		"active_mappings": h.relay.ActiveCount(),
	})
}

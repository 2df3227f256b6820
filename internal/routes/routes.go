package routes

import (
	"time"

	"github.com/crossguard/crossguard/internal/config"
	"github.com/crossguard/crossguard/internal/handlers"
	"github.com/crossguard/crossguard/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	healthHandler *handlers.HealthHandler,
	reportHandler *handlers.ReportHandler,
	relayHandler *handlers.RelayHandler,
	reputationHandler *handlers.ReputationHandler,
	auditHandler *handlers.AuditHandler,
	reviewerHandler *handlers.ReviewerHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP. The per-submitter
	// sliding window inside intake is separate and policy-driven.
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	// Health (no tenant required)
	api.Get("/health", healthHandler.Check)

	// All remaining routes require authentication and a tenant.
	protected := api.Group("", middleware.JWTProtected(cfg))

	// Member endpoints: submission and anonymous evidence relay.
	protected.Post("/reports", reportHandler.Submit)
	protected.Post("/relay", relayHandler.Relay)

	// Reviewer endpoints.
	reviewer := protected.Group("", middleware.ReviewerRequired(db))
	reviewer.Get("/reports", reportHandler.List)
	reviewer.Get("/reports/:token/session", reportHandler.Session)
	reviewer.Post("/reports/:token/votes", reportHandler.Vote)
	reviewer.Post("/reports/:token/finalize", reportHandler.Finalize)
	reviewer.Post("/reports/:token/relay/expire", relayHandler.ForceExpire)
	reviewer.Get("/reputation/:target", reputationHandler.Lookup)
	reviewer.Post("/reputation/:target/evaluate", reputationHandler.Evaluate)
	reviewer.Get("/audit", auditHandler.History)
	reviewer.Get("/stats", reputationHandler.Stats)

	// Admin endpoints: reviewer directory management.
	admin := protected.Group("/admin", middleware.AdminRequired(db, cfg))
	admin.Post("/reviewers", reviewerHandler.Grant)
	admin.Delete("/reviewers/:member_id", reviewerHandler.Revoke)
}

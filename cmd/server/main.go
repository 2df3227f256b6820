package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/crossguard/crossguard/internal/anonymize"
	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/autoaction"
	"github.com/crossguard/crossguard/internal/config"
	"github.com/crossguard/crossguard/internal/database"
	"github.com/crossguard/crossguard/internal/gateway"
	"github.com/crossguard/crossguard/internal/handlers"
	"github.com/crossguard/crossguard/internal/intake"
	"github.com/crossguard/crossguard/internal/logging"
	"github.com/crossguard/crossguard/internal/middleware"
	"github.com/crossguard/crossguard/internal/relay"
	"github.com/crossguard/crossguard/internal/reputation"
	"github.com/crossguard/crossguard/internal/routes"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/crossguard/crossguard/internal/validation"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Anonymity is fail-closed: a missing or short secret refuses startup
	// rather than accepting a single report with broken guarantees.
	pseudo, err := anonymize.New(cfg.AnonSecret)
	if err != nil {
		slog.Error("ANON_SECRET must be at least 32 bytes", "error", err)
		os.Exit(1)
	}

	// Tenant policy registry (validated at load)
	registry, err := tenant.LoadFromFile(cfg.PoliciesPath)
	if err != nil {
		slog.Error("failed to load tenant policies", "path", cfg.PoliciesPath, "error", err)
		os.Exit(1)
	}
	slog.Info("tenant policies loaded", "tenants", len(registry.All()))

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (WARN+ async batch)
	pgLogHandler := logging.NewPGHandler(db)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cleanupDone)

	// Audit trail (append-only per tenant+month segments)
	trail, err := audit.NewTrail(cfg.AuditDir)
	if err != nil {
		slog.Error("failed to open audit trail", "dir", cfg.AuditDir, "error", err)
		os.Exit(1)
	}

	// Messaging gateway
	var gw gateway.Gateway
	if cfg.GatewayURL != "" {
		gw = gateway.NewWebhook(cfg.GatewayURL, cfg.GatewayToken, cfg.GatewayTimeout)
	} else {
		slog.Warn("GATEWAY_URL not set; using in-memory gateway")
		gw = gateway.NewInMemory()
	}

	// Services
	aggregator := reputation.NewAggregator(db, trail)
	retries := reputation.NewRetryQueue(aggregator)
	evidenceRelay := relay.New(gw, registry, trail, cfg.RelaySweepInterval)
	intakeService := intake.NewService(db, pseudo, registry, evidenceRelay, gw)
	sessions := validation.NewManager(db, registry, aggregator, retries, trail)
	executor := autoaction.NewExecutor(aggregator, registry, gw, trail)

	// Background sweeps
	sweepDone := make(chan struct{})
	sessions.StartSweeper(cfg.SessionSweepInterval, sweepDone)
	retries.Start(cfg.ReputationRetryInterval, sweepDone)

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, registry, evidenceRelay)
	reportHandler := handlers.NewReportHandler(db, intakeService, sessions)
	relayHandler := handlers.NewRelayHandler(evidenceRelay, intakeService)
	reputationHandler := handlers.NewReputationHandler(aggregator, executor)
	auditHandler := handlers.NewAuditHandler(trail)
	reviewerHandler := handlers.NewReviewerHandler(db, trail)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})
	app.Use(middleware.TenantMiddleware(registry))

	// Routes
	routes.Setup(app, cfg, db, healthHandler, reportHandler, relayHandler, reputationHandler, auditHandler, reviewerHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)
	close(sweepDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

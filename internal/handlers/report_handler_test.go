package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crossguard/crossguard/internal/anonymize"
	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/database"
	"github.com/crossguard/crossguard/internal/gateway"
	"github.com/crossguard/crossguard/internal/intake"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/relay"
	"github.com/crossguard/crossguard/internal/reputation"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/crossguard/crossguard/internal/validation"
)

// testApp wires a Fiber app with the report routes and a stub auth layer
// injecting the tenant and member the real middleware would resolve.
func testApp(t *testing.T, policy *tenant.Policy) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	registry := tenant.NewRegistry()
	require.NoError(t, registry.Register(policy))

	pseudo, err := anonymize.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	trail, err := audit.NewTrail(t.TempDir())
	require.NoError(t, err)

	gw := gateway.NewInMemory()
	evidence := relay.New(gw, registry, trail, time.Minute)
	intakeSvc := intake.NewService(db, pseudo, registry, evidence, gw)
	agg := reputation.NewAggregator(db, trail)
	sessions := validation.NewManager(db, registry, agg, reputation.NewRetryQueue(agg), trail)

	handler := NewReportHandler(db, intakeSvc, sessions)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("tenant_id", policy.TenantID)
		c.Locals("user", &jwt.Token{Claims: jwt.MapClaims{"sub": "member-42", "name": "Member"}})
		return c.Next()
	})
	app.Post("/reports", handler.Submit)
	app.Get("/reports", handler.List)
	app.Post("/reports/:token/votes", handler.Vote)
	app.Get("/reports/:token/session", handler.Session)
	return app, db
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestSubmit_Created(t *testing.T) {
	app, _ := testApp(t, &tenant.Policy{TenantID: "t1"})

	resp := postJSON(t, app, "/reports", fiber.Map{
		"target_identifier": "EvilUser",
		"category":          "harassment",
		"reason":            "threatening messages",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var report models.Report
	decodeBody(t, resp, &report)
	assert.NotEmpty(t, report.Token)
	assert.Equal(t, models.ReportStatusPending, report.Status)
}

func TestSubmit_InvalidInput(t *testing.T) {
	app, _ := testApp(t, &tenant.Policy{TenantID: "t1"})

	resp := postJSON(t, app, "/reports", fiber.Map{
		"target_identifier": "EvilUser",
		"category":          "not_a_category",
		"reason":            "whatever",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Field string `json:"field"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "category", body.Field)
}

func TestSubmit_DuplicateConflict(t *testing.T) {
	app, _ := testApp(t, &tenant.Policy{TenantID: "t1"})

	body := fiber.Map{
		"target_identifier": "EvilUser",
		"category":          "spam",
		"reason":            "spamming links",
	}
	resp := postJSON(t, app, "/reports", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, app, "/reports", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSubmit_RateLimitedWithRetryAfter(t *testing.T) {
	app, _ := testApp(t, &tenant.Policy{
		TenantID:  "t1",
		RateLimit: tenant.RateLimitPolicy{MaxPerWindow: 1, WindowSeconds: 3600},
	})

	resp := postJSON(t, app, "/reports", fiber.Map{
		"target_identifier": "user-a",
		"category":          "spam",
		"reason":            "spamming links",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, app, "/reports", fiber.Map{
		"target_identifier": "user-b",
		"category":          "spam",
		"reason":            "spamming links",
	})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestVote_FlowOverHTTP(t *testing.T) {
	app, db := testApp(t, &tenant.Policy{TenantID: "t1", QuorumThresholdPct: 80})
	require.NoError(t, db.Create(&models.Reviewer{
		TenantID: "t1", MemberID: "member-42", Role: models.RoleReviewer,
	}).Error)

	resp := postJSON(t, app, "/reports", fiber.Map{
		"target_identifier": "EvilUser",
		"category":          "harassment",
		"reason":            "threatening messages",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var report models.Report
	decodeBody(t, resp, &report)

	resp = postJSON(t, app, "/reports/"+report.Token+"/votes", fiber.Map{"vote": "approve"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var outcome validation.VoteOutcome
	decodeBody(t, resp, &outcome)
	assert.Equal(t, validation.StateFinalizedValidated, outcome.State)

	// Further votes hit an already finalized report.
	resp = postJSON(t, app, "/reports/"+report.Token+"/votes", fiber.Map{"vote": "reject"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestVote_UnknownToken(t *testing.T) {
	app, db := testApp(t, &tenant.Policy{TenantID: "t1"})
	require.NoError(t, db.Create(&models.Reviewer{
		TenantID: "t1", MemberID: "member-42", Role: models.RoleReviewer,
	}).Error)

	resp := postJSON(t, app, "/reports/missing/votes", fiber.Map{"vote": "approve"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVote_RejectsUnknownVoteValue(t *testing.T) {
	app, _ := testApp(t, &tenant.Policy{TenantID: "t1"})

	resp := postJSON(t, app, "/reports/whatever/votes", fiber.Map{"vote": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

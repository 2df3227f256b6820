package intake

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crossguard/crossguard/internal/anonymize"
	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/database"
	"github.com/crossguard/crossguard/internal/gateway"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/relay"
	"github.com/crossguard/crossguard/internal/tenant"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T, policies ...*tenant.Policy) (*Service, *gateway.InMemory, *relay.Relay) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	registry := tenant.NewRegistry()
	if len(policies) == 0 {
		policies = []*tenant.Policy{{TenantID: "t1", RateLimit: tenant.RateLimitPolicy{MaxPerWindow: 100, WindowSeconds: 3600}}}
	}
	for _, p := range policies {
		require.NoError(t, registry.Register(p))
	}

	pseudo, err := anonymize.New(testSecret)
	require.NoError(t, err)

	trail, err := audit.NewTrail(t.TempDir())
	require.NoError(t, err)

	gw := gateway.NewInMemory()
	evidence := relay.New(gw, registry, trail, time.Minute)
	return NewService(db, pseudo, registry, evidence, gw), gw, evidence
}

func validSubmission() Submission {
	return Submission{
		SubmitterID:      "member-42",
		TenantID:         "t1",
		TargetIdentifier: "EvilUser",
		Category:         "harassment",
		Reason:           "repeated abusive messages",
		Evidence:         "screenshot descriptions",
	}
}

func TestSubmit_CreatesPendingReport(t *testing.T) {
	svc, _, _ := newTestService(t)

	report, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)

	assert.NotEmpty(t, report.Token)
	assert.Equal(t, models.ReportStatusPending, report.Status)
	assert.Equal(t, "eviluser", report.TargetIdentifier)
	assert.Equal(t, "t1-thread-1", report.ThreadID)

	var stored models.Report
	require.NoError(t, svc.db.Where("token = ?", report.Token).First(&stored).Error)
	assert.Equal(t, "t1-thread-1", stored.ThreadID)
}

func TestSubmit_StoresNoSubmitterIdentifier(t *testing.T) {
	svc, _, _ := newTestService(t)

	report, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)

	var stored models.Report
	require.NoError(t, svc.db.Where("id = ?", report.ID).First(&stored).Error)

	var fp models.DuplicateFingerprint
	require.NoError(t, svc.db.Where("report_id = ?", report.ID).First(&fp).Error)

	// The only stored link is the keyed fingerprint; the raw submitter
	// identifier appears in neither row.
	assert.NotContains(t, fp.Fingerprint, "member-42")
	assert.Len(t, fp.Fingerprint, 64)
	assert.NotContains(t, stored.Reason, "member-42")
}

func TestSubmit_ValidationFailures(t *testing.T) {
	svc, _, _ := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*Submission)
		field  string
	}{
		{"empty target", func(s *Submission) { s.TargetIdentifier = "   " }, "target_identifier"},
		{"target too long", func(s *Submission) { s.TargetIdentifier = strings.Repeat("x", 129) }, "target_identifier"},
		{"target with control chars", func(s *Submission) { s.TargetIdentifier = "evil\x00user" }, "target_identifier"},
		{"empty reason", func(s *Submission) { s.Reason = "" }, "reason"},
		{"reason too long", func(s *Submission) { s.Reason = strings.Repeat("x", 1001) }, "reason"},
		{"evidence too long", func(s *Submission) { s.Evidence = strings.Repeat("x", 2001) }, "evidence"},
		{"unknown category", func(s *Submission) { s.Category = "being_annoying" }, "category"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := validSubmission()
			tc.mutate(&sub)

			_, err := svc.Submit(context.Background(), sub)
			rej, ok := AsRejection(err)
			require.True(t, ok, "expected a rejection, got %v", err)
			assert.Equal(t, ReasonInvalidInput, rej.Reason)
			assert.Equal(t, tc.field, rej.Field)
		})
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	svc, _, _ := newTestService(t, &tenant.Policy{
		TenantID:  "t1",
		RateLimit: tenant.RateLimitPolicy{MaxPerWindow: 2, WindowSeconds: 3600},
	})

	for i, target := range []string{"user-a", "user-b"} {
		sub := validSubmission()
		sub.TargetIdentifier = target
		_, err := svc.Submit(context.Background(), sub)
		require.NoError(t, err, "submission %d", i)
	}

	sub := validSubmission()
	sub.TargetIdentifier = "user-c"
	_, err := svc.Submit(context.Background(), sub)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonRateLimited, rej.Reason)
	assert.Greater(t, rej.RetryAfter, time.Duration(0))

	// A different submitter is unaffected.
	other := validSubmission()
	other.SubmitterID = "member-99"
	_, err = svc.Submit(context.Background(), other)
	require.NoError(t, err)
}

func TestSubmit_DuplicateDetection(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)

	// Same submitter, same target with different casing and padding.
	dup := validSubmission()
	dup.TargetIdentifier = "  EVILUSER "
	dup.Category = "spam"
	_, err = svc.Submit(context.Background(), dup)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonDuplicate, rej.Reason)
	assert.Empty(t, rej.Field)

	// Another submitter reporting the same target is a fresh report.
	other := validSubmission()
	other.SubmitterID = "member-99"
	_, err = svc.Submit(context.Background(), other)
	require.NoError(t, err)
}

func TestSubmit_DuplicateScopedToTenant(t *testing.T) {
	svc, _, _ := newTestService(t,
		&tenant.Policy{TenantID: "t1"},
		&tenant.Policy{TenantID: "t2"},
	)

	_, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)

	cross := validSubmission()
	cross.TenantID = "t2"
	_, err = svc.Submit(context.Background(), cross)
	require.NoError(t, err)
}

func TestSubmit_RegistersRelayMapping(t *testing.T) {
	svc, gw, evidence := newTestService(t)

	report, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, 1, evidence.ActiveCount())

	pseudonym, err := svc.SubmitterPseudonym("member-42", "t1")
	require.NoError(t, err)

	result, err := evidence.Relay(context.Background(), pseudonym, "more proof")
	require.NoError(t, err)
	assert.Equal(t, relay.StatusDelivered, result.Status)
	require.Len(t, gw.ThreadPosts[report.ThreadID], 1)
}

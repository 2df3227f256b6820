package intake

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crossguard/crossguard/internal/anonymize"
	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/autoaction"
	"github.com/crossguard/crossguard/internal/database"
	"github.com/crossguard/crossguard/internal/gateway"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/relay"
	"github.com/crossguard/crossguard/internal/reputation"
	"github.com/crossguard/crossguard/internal/tenant"
	"github.com/crossguard/crossguard/internal/validation"
)

// Exercises the whole pipeline: an anonymous report in one community is
// validated by its reviewers, lands in the shared reputation registry, and a
// second community with a stricter validation floor sees an alert rather
// than its configured quarantine.
func TestReportLifecycleAcrossTenants(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "scenario.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	registry := tenant.NewRegistry()
	require.NoError(t, registry.Register(&tenant.Policy{
		TenantID:           "community-1",
		QuorumThresholdPct: 80,
	}))
	require.NoError(t, registry.Register(&tenant.Policy{
		TenantID:                    "community-2",
		MinValidationsForAutoAction: 2,
		AutoActions:                 map[string]string{"medium": autoaction.ActionQuarantine},
	}))

	pseudo, err := anonymize.New(testSecret)
	require.NoError(t, err)
	trail, err := audit.NewTrail(t.TempDir())
	require.NoError(t, err)

	gw := gateway.NewInMemory()
	evidence := relay.New(gw, registry, trail, time.Minute)
	svc := NewService(db, pseudo, registry, evidence, gw)

	agg := reputation.NewAggregator(db, trail)
	sessions := validation.NewManager(db, registry, agg, reputation.NewRetryQueue(agg), trail)
	exec := autoaction.NewExecutor(agg, registry, gw, trail)

	for _, m := range []string{"mod-a", "mod-b"} {
		require.NoError(t, db.Create(&models.Reviewer{
			TenantID: "community-1", MemberID: m, Role: models.RoleReviewer,
		}).Error)
	}

	// An anonymous member reports a harasser.
	report, err := svc.Submit(context.Background(), Submission{
		SubmitterID:      "member-s",
		TenantID:         "community-1",
		TargetIdentifier: "EvilUser",
		Category:         "harassment",
		Reason:           "sending threatening DMs to new members",
	})
	require.NoError(t, err)

	// Both reviewers approve; the second vote reaches the 80% quorum.
	outcome, err := sessions.CastVote(report.Token, "community-1", "mod-a", "Mod A", true)
	require.NoError(t, err)
	assert.Equal(t, validation.StateOpen, outcome.State)

	outcome, err = sessions.CastVote(report.Token, "community-1", "mod-b", "Mod B", true)
	require.NoError(t, err)
	assert.Equal(t, validation.StateFinalizedValidated, outcome.State)

	// The shared registry now carries one validated report for the target.
	record, err := agg.Lookup("eviluser", "community-2", "mod-x")
	require.NoError(t, err)
	assert.Equal(t, 1, record.ValidatedCount)
	assert.Equal(t, models.SeverityMedium, record.FlagLevel)

	// Community 2 requires two validations before anything beyond an alert,
	// so its configured quarantine does not fire yet.
	action, err := exec.Evaluate(context.Background(), "eviluser", "community-2", "mod-x", "Mod X")
	require.NoError(t, err)
	assert.Equal(t, autoaction.ActionAlert, action.Action)
	assert.True(t, action.BelowThreshold)
	assert.Empty(t, gw.Assignments["eviluser"])
	require.Len(t, gw.DirectMessages["mod-x"], 1)

	// The submitter can still relay follow-up evidence anonymously.
	pseudonym, err := svc.SubmitterPseudonym("member-s", "community-1")
	require.NoError(t, err)
	result, err := evidence.Relay(context.Background(), pseudonym, "screenshot of another threat")
	require.NoError(t, err)
	assert.Equal(t, relay.StatusDelivered, result.Status)

	// The finalization and the cross-tenant lookup are both on the record.
	entries, err := trail.History("community-1", 7, "")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, audit.ActionReportValidated, entries[0].Action)
	assert.Equal(t, report.Token, entries[0].ReportToken)
}

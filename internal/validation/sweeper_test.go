package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/models"
)

func TestSweep_ExpiresStaleSessions(t *testing.T) {
	f := newFixture(t, twoReviewerPolicy())
	f.addReviewer(t, "t1", "mod-a")
	f.addReport(t, "stale", "t1", "eviluser")
	f.addReport(t, "fresh", "t1", "otheruser")

	require.NoError(t, f.db.Model(&models.Report{}).Where("token = ?", "stale").
		Update("created_at", f.now.Add(-49*time.Hour)).Error)

	f.manager.sweep()

	snap, err := f.manager.Snapshot("stale", "t1")
	require.NoError(t, err)
	assert.Equal(t, StateExpired, snap.State)

	snap, err = f.manager.Snapshot("fresh", "t1")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, snap.State)

	// Expiry is audited once; the report row stays pending.
	var report models.Report
	require.NoError(t, f.db.Where("token = ?", "stale").First(&report).Error)
	assert.Equal(t, models.ReportStatusPending, report.Status)

	f.manager.sweep()
	entries, err := f.manager.trail.History("t1", 7, audit.ActionReportExpired)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "stale", entries[0].ReportToken)
	assert.Equal(t, "system", entries[0].ModeratorID)
}

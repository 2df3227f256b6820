package reputation

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/database"
	"github.com/crossguard/crossguard/internal/models"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	trail, err := audit.NewTrail(t.TempDir())
	require.NoError(t, err)
	return NewAggregator(db, trail)
}

func tiers(t *testing.T, record *models.ReputationRecord) []string {
	t.Helper()
	var out []string
	require.NoError(t, json.Unmarshal(record.SeverityTiers, &out))
	return out
}

func TestRecordValidated_FlagLadder(t *testing.T) {
	agg := newTestAggregator(t)

	record, err := agg.RecordValidated("eviluser", "t1", models.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, 1, record.ValidatedCount)
	assert.Equal(t, models.SeverityMedium, record.FlagLevel)

	record, err = agg.RecordValidated("eviluser", "t2", models.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, 2, record.ValidatedCount)
	assert.Equal(t, models.SeverityHigh, record.FlagLevel)

	record, err = agg.RecordValidated("eviluser", "t1", models.SeverityLow)
	require.NoError(t, err)
	assert.Equal(t, 3, record.ValidatedCount)
	assert.Equal(t, models.SeverityCritical, record.FlagLevel)
	assert.Equal(t, "t1", record.LastFlaggingTenant)
	require.NotNil(t, record.LastFlaggedAt)
}

func TestRecordValidated_SeverityTiersAccumulate(t *testing.T) {
	agg := newTestAggregator(t)

	record, err := agg.RecordValidated("eviluser", "t1", models.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, []string{models.SeverityHigh}, tiers(t, record))

	// Repeated tiers do not duplicate; new tiers are appended.
	record, err = agg.RecordValidated("eviluser", "t1", models.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, []string{models.SeverityHigh}, tiers(t, record))

	record, err = agg.RecordValidated("eviluser", "t2", models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, []string{models.SeverityHigh, models.SeverityCritical}, tiers(t, record))
}

func TestRecordValidated_NormalizesTarget(t *testing.T) {
	agg := newTestAggregator(t)

	_, err := agg.RecordValidated("  EvilUser ", "t1", models.SeverityMedium)
	require.NoError(t, err)

	record, err := agg.Fetch("eviluser")
	require.NoError(t, err)
	assert.Equal(t, 1, record.ValidatedCount)
	assert.Equal(t, "eviluser", record.TargetIdentifier)
}

func TestLookup(t *testing.T) {
	agg := newTestAggregator(t)

	_, err := agg.Lookup("ghost", "t1", "mod-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = agg.RecordValidated("eviluser", "t1", models.SeverityMedium)
	require.NoError(t, err)

	record, err := agg.Lookup("EvilUser", "t2", "mod-2")
	require.NoError(t, err)
	assert.Equal(t, 1, record.ValidatedCount)
}

func TestGetTenantStats(t *testing.T) {
	agg := newTestAggregator(t)

	seed := []models.Report{
		{Token: "a1", TenantID: "t1", TargetIdentifier: "x", Category: "spam", Reason: "r", Status: models.ReportStatusValidated},
		{Token: "a2", TenantID: "t1", TargetIdentifier: "y", Category: "spam", Reason: "r", Status: models.ReportStatusRejected},
		{Token: "a3", TenantID: "t1", TargetIdentifier: "z", Category: "spam", Reason: "r", Status: models.ReportStatusPending},
		{Token: "b1", TenantID: "t2", TargetIdentifier: "x", Category: "spam", Reason: "r", Status: models.ReportStatusValidated},
	}
	for i := range seed {
		require.NoError(t, agg.db.Create(&seed[i]).Error)
	}

	stats, err := agg.GetTenantStats("t1", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Submitted)
	assert.Equal(t, int64(1), stats.Validated)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestRetryQueue_EnqueueLinksMemoryCopyToMirror(t *testing.T) {
	agg := newTestAggregator(t)
	queue := NewRetryQueue(agg)

	queue.Enqueue("eviluser", "t1", models.SeverityHigh, ErrStoreUnavailable)

	var mirrored models.ReputationRetry
	require.NoError(t, agg.db.First(&mirrored).Error)

	// The queued copy shares the mirror row's ID, so drain recognizes the
	// persisted row as the same update rather than a second one.
	queue.mu.Lock()
	require.Len(t, queue.pending, 1)
	assert.Equal(t, mirrored.ID, queue.pending[0].ID)
	queue.mu.Unlock()
}

func TestRetryQueue_DrainAppliesAndClearsMirror(t *testing.T) {
	agg := newTestAggregator(t)
	queue := NewRetryQueue(agg)

	queue.Enqueue("eviluser", "t1", models.SeverityHigh, ErrStoreUnavailable)

	var mirrored int64
	require.NoError(t, agg.db.Model(&models.ReputationRetry{}).Count(&mirrored).Error)
	assert.Equal(t, int64(1), mirrored)

	queue.drain()

	record, err := agg.Fetch("eviluser")
	require.NoError(t, err)
	assert.Equal(t, 1, record.ValidatedCount)

	require.NoError(t, agg.db.Model(&models.ReputationRetry{}).Count(&mirrored).Error)
	assert.Equal(t, int64(0), mirrored)

	// A second drain must not double-apply the update.
	queue.drain()
	record, err = agg.Fetch("eviluser")
	require.NoError(t, err)
	assert.Equal(t, 1, record.ValidatedCount)
}

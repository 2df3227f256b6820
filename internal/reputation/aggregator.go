package reputation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossguard/crossguard/internal/anonymize"
	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/tenant"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrStoreUnavailable = errors.New("reputation store unavailable")
	ErrNotFound         = errors.New("no reputation record for target")
)

// flagForCount derives the cross-tenant flag level from the validated-report
// count. Independent of the per-category severity tiers, which are retained
// alongside it.
func flagForCount(count int) string {
	switch {
	case count >= 3:
		return models.SeverityCritical
	case count == 2:
		return models.SeverityHigh
	case count == 1:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// flagRank orders flag levels so the stored level never decreases.
var flagRank = map[string]int{
	models.SeverityLow:      0,
	models.SeverityMedium:   1,
	models.SeverityHigh:     2,
	models.SeverityCritical: 3,
}

// Aggregator maintains the single authoritative cross-tenant reputation
// registry and audits every lookup against it.
type Aggregator struct {
	db    *gorm.DB
	trail *audit.Trail
}

func NewAggregator(db *gorm.DB, trail *audit.Trail) *Aggregator {
	return &Aggregator{db: db, trail: trail}
}

// RecordValidated applies one validated report to the target's record. The
// count only ever increases; repeated calls for further validated reports
// walk the flag level upward and never back down.
func (a *Aggregator) RecordValidated(targetIdentifier, tenantID, severityTier string) (*models.ReputationRecord, error) {
	target := anonymize.NormalizeTarget(targetIdentifier)
	now := time.Now().UTC()

	var record models.ReputationRecord
	err := a.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("target_identifier = ?", target).First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = models.ReputationRecord{
				TargetIdentifier: target,
				SeverityTiers:    datatypes.JSON([]byte("[]")),
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		record.ValidatedCount++
		derived := flagForCount(record.ValidatedCount)
		if flagRank[derived] > flagRank[record.FlagLevel] {
			record.FlagLevel = derived
		}
		record.SeverityTiers = addTier(record.SeverityTiers, severityTier)
		record.LastFlaggingTenant = tenantID
		record.LastFlaggedAt = &now

		return tx.Save(&record).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	slog.Info("reputation recorded",
		"tenant_id", tenantID,
		"flag_level", record.FlagLevel,
		"validated_count", record.ValidatedCount)
	return &record, nil
}

// Lookup returns the target's record for a requesting tenant. The lookup is
// always audited, hit or miss.
func (a *Aggregator) Lookup(targetIdentifier, requestingTenantID, moderatorID string) (*models.ReputationRecord, error) {
	target := anonymize.NormalizeTarget(targetIdentifier)

	var record models.ReputationRecord
	err := a.db.Where("target_identifier = ?", target).First(&record).Error
	found := err == nil

	if auditErr := a.trail.AppendLookup(requestingTenantID, target, moderatorID, found); auditErr != nil {
		slog.Error("failed to audit reputation lookup", "tenant_id", requestingTenantID, "error", auditErr)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &record, nil
}

// Fetch reads a target's record without writing a lookup audit entry. It
// serves internal policy evaluation; the moderator-facing lookup feature
// goes through Lookup instead.
func (a *Aggregator) Fetch(targetIdentifier string) (*models.ReputationRecord, error) {
	target := anonymize.NormalizeTarget(targetIdentifier)

	var record models.ReputationRecord
	err := a.db.Where("target_identifier = ?", target).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &record, nil
}

// TenantStats counts a tenant's reports by status over the last days.
type TenantStats struct {
	Submitted int64 `json:"submitted"`
	Validated int64 `json:"validated"`
	Rejected  int64 `json:"rejected"`
}

func (a *Aggregator) GetTenantStats(tenantID string, days int) (*TenantStats, error) {
	if days < 1 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	var stats TenantStats
	base := a.db.Model(&models.Report{}).Scopes(tenant.ForTenant(tenantID)).Where("created_at >= ?", since)
	if err := base.Session(&gorm.Session{}).Count(&stats.Submitted).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", models.ReportStatusValidated).Count(&stats.Validated).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", models.ReportStatusRejected).Count(&stats.Rejected).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &stats, nil
}

func addTier(raw datatypes.JSON, tier string) datatypes.JSON {
	var tiers []string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &tiers)
	}
	for _, t := range tiers {
		if t == tier {
			return raw
		}
	}
	tiers = append(tiers, tier)
	out, err := json.Marshal(tiers)
	if err != nil {
		return raw
	}
	return datatypes.JSON(out)
}

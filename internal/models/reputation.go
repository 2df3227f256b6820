package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ReputationRecord aggregates validated reports for a target across all
// tenants. The flag level is derived from ValidatedCount and is monotonic:
// the system never decreases it automatically.
type ReputationRecord struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TargetIdentifier   string         `gorm:"size:128;not null;uniqueIndex" json:"target_identifier"`
	ValidatedCount     int            `gorm:"not null;default:0" json:"validated_count"`
	SeverityTiers      datatypes.JSON `gorm:"type:jsonb;default:'[]'" json:"severity_tiers"`
	FlagLevel          string         `gorm:"size:16;not null;default:'low'" json:"flag_level"`
	LastFlaggingTenant string         `gorm:"size:64" json:"last_flagging_tenant"`
	LastFlaggedAt      *time.Time     `json:"last_flagged_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ReputationRetry queues a validated-report update that could not reach the
// reputation store, so a finalized validation is never lost.
type ReputationRetry struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TargetIdentifier string    `gorm:"size:128;not null" json:"target_identifier"`
	TenantID         string    `gorm:"size:64;not null" json:"-"`
	SeverityTier     string    `gorm:"size:16;not null" json:"severity_tier"`
	Attempts         int       `gorm:"not null;default:0" json:"attempts"`
	LastError        string    `gorm:"size:500" json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

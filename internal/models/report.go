package models

import (
	"time"

	"github.com/google/uuid"
)

// Report statuses. Transitions are one-way: pending -> validated | rejected.
const (
	ReportStatusPending   = "pending"
	ReportStatusValidated = "validated"
	ReportStatusRejected  = "rejected"
)

// Severity tiers attached to report categories.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// CategorySeverity maps each known report category to its severity tier.
// An unknown category is an intake validation failure.
var CategorySeverity = map[string]string{
	"spam":          SeverityMedium,
	"impersonation": SeverityMedium,
	"harassment":    SeverityHigh,
	"scam":          SeverityHigh,
	"doxxing":       SeverityCritical,
	"threats":       SeverityCritical,
	"nsfw_content":  SeverityMedium,
	"other":         SeverityLow,
}

// Report is an anonymous behavioral report. It deliberately carries no
// submitter identifier; the only links back to the submitter are the keyed
// fingerprints, which are non-invertible without the server secret.
type Report struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Token                 string     `gorm:"size:16;not null;uniqueIndex" json:"token"`
	TenantID              string     `gorm:"size:64;not null;index" json:"-"`
	TargetIdentifier      string     `gorm:"size:128;not null;index" json:"target_identifier"`
	Category              string     `gorm:"size:32;not null" json:"category"`
	Reason                string     `gorm:"size:1000;not null" json:"reason"`
	EvidenceText          string     `gorm:"size:2000" json:"evidence_text,omitempty"`
	Status                string     `gorm:"size:16;not null;default:'pending';index" json:"status"`
	ThreadID              string     `gorm:"size:64" json:"thread_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	FinalizedAt           *time.Time `json:"finalized_at,omitempty"`
	FinalizingModeratorID string     `gorm:"size:64" json:"finalizing_moderator_id,omitempty"`
}

// DuplicateFingerprint is inserted exactly once per accepted report. The
// unique index on (tenant_id, fingerprint) makes the duplicate check-and-
// insert a single atomic operation at the database level.
type DuplicateFingerprint struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string    `gorm:"size:64;not null;uniqueIndex:idx_tenant_fingerprint" json:"-"`
	Fingerprint string    `gorm:"size:64;not null;uniqueIndex:idx_tenant_fingerprint" json:"-"`
	ReportID    uuid.UUID `gorm:"type:uuid;not null" json:"report_id"`
	CreatedAt   time.Time `json:"created_at"`
}

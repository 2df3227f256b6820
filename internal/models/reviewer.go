package models

import (
	"time"

	"github.com/google/uuid"
)

// Reviewer roles.
const (
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)

// Reviewer grants a member the tenant's review permission. The live count of
// reviewers is the quorum denominator, so grants and revocations mid-vote
// change the percentage math for subsequent votes.
type Reviewer struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string    `gorm:"size:64;not null;uniqueIndex:idx_tenant_member" json:"-"`
	MemberID    string    `gorm:"size:64;not null;uniqueIndex:idx_tenant_member" json:"member_id"`
	DisplayName string    `gorm:"size:128" json:"display_name"`
	Role        string    `gorm:"size:16;not null;default:'reviewer'" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

package intake

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/crossguard/crossguard/internal/anonymize"
	"github.com/crossguard/crossguard/internal/gateway"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/ratelimit"
	"github.com/crossguard/crossguard/internal/relay"
	"github.com/crossguard/crossguard/internal/tenant"
	"gorm.io/gorm"
)

const (
	maxTargetLen   = 128
	maxReasonLen   = 1000
	maxEvidenceLen = 2000
)

// Rejection reasons.
const (
	ReasonInvalidInput = "invalid_input"
	ReasonRateLimited  = "rate_limited"
	ReasonDuplicate    = "duplicate"
)

// Rejection is a typed, user-correctable intake failure. It never reveals
// the prior report a duplicate collided with.
type Rejection struct {
	Reason     string        `json:"reason"`
	Field      string        `json:"field,omitempty"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"-"`
}

func (r *Rejection) Error() string { return r.Message }

// AsRejection unwraps a Rejection from an intake error, if present.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

type Submission struct {
	SubmitterID      string
	TenantID         string
	TargetIdentifier string
	Category         string
	Reason           string
	Evidence         string
}

// Service validates submissions, enforces per-submitter rate limits and
// duplicate detection, and creates pending reports. The submitter identifier
// never reaches storage; only keyed fingerprints do.
type Service struct {
	db       *gorm.DB
	pseudo   *anonymize.Pseudonymizer
	registry *tenant.Registry
	relay    *relay.Relay
	gw       gateway.Gateway

	mu       sync.Mutex
	limiters map[string]*ratelimit.Limiter
}

func NewService(db *gorm.DB, pseudo *anonymize.Pseudonymizer, registry *tenant.Registry, rl *relay.Relay, gw gateway.Gateway) *Service {
	return &Service{
		db:       db,
		pseudo:   pseudo,
		registry: registry,
		relay:    rl,
		gw:       gw,
		limiters: make(map[string]*ratelimit.Limiter),
	}
}

// Submit runs the intake pipeline: validate, rate-limit, dedup, create.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.Report, error) {
	policy := s.registry.Get(sub.TenantID)
	if policy == nil {
		return nil, fmt.Errorf("unknown tenant %q", sub.TenantID)
	}

	if rej := validateSubmission(&sub); rej != nil {
		return nil, rej
	}

	submitterFP, err := s.pseudo.Submitter(sub.SubmitterID, sub.TenantID)
	if err != nil {
		return nil, err
	}

	limiter := s.limiterFor(policy)
	if !limiter.TryAcquire(submitterFP) {
		return nil, &Rejection{
			Reason:     ReasonRateLimited,
			Message:    "too many reports; try again later",
			RetryAfter: limiter.RemainingCooldown(submitterFP),
		}
	}

	dupFP, err := s.pseudo.Duplicate(sub.SubmitterID, sub.TenantID, sub.TargetIdentifier)
	if err != nil {
		return nil, err
	}

	report := &models.Report{
		Token:            newToken(),
		TenantID:         sub.TenantID,
		TargetIdentifier: anonymize.NormalizeTarget(sub.TargetIdentifier),
		Category:         sub.Category,
		Reason:           sub.Reason,
		EvidenceText:     sub.Evidence,
		Status:           models.ReportStatusPending,
	}

	// The fingerprint insert and report insert share a transaction; the
	// unique index makes the duplicate check-and-insert atomic, so two
	// concurrent identical submissions cannot both land.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(report).Error; err != nil {
			return err
		}
		fp := &models.DuplicateFingerprint{
			TenantID:    sub.TenantID,
			Fingerprint: dupFP,
			ReportID:    report.ID,
		}
		return tx.Create(fp).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, &Rejection{
			Reason:  ReasonDuplicate,
			Message: "you have already reported this member",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	s.openThread(ctx, report)

	ttl := time.Duration(policy.EvidenceTTLHours) * time.Hour
	s.relay.RegisterMapping(submitterFP, report.Token, report.ThreadID, sub.TenantID, ttl)

	slog.Info("report accepted", "tenant_id", sub.TenantID, "token", report.Token, "category", sub.Category)
	return report, nil
}

// SubmitterPseudonym exposes the relay mapping key for a submitter so the
// relay handler can address the mapping without learning anything else.
func (s *Service) SubmitterPseudonym(submitterID, tenantID string) (string, error) {
	return s.pseudo.Submitter(submitterID, tenantID)
}

// openThread asks the platform for a discussion thread. A gateway failure
// leaves the report without a thread; follow-up evidence then has nowhere to
// go, but intake itself must not fail on it.
func (s *Service) openThread(ctx context.Context, report *models.Report) {
	threadID, err := s.gw.CreateThread(ctx, report.TenantID, "Report "+report.Token)
	if err != nil {
		slog.Error("failed to create report thread", "tenant_id", report.TenantID, "token", report.Token, "error", err)
		return
	}
	report.ThreadID = threadID
	if err := s.db.Model(report).Update("thread_id", threadID).Error; err != nil {
		slog.Error("failed to store thread id", "token", report.Token, "error", err)
	}
}

func (s *Service) limiterFor(policy *tenant.Policy) *ratelimit.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[policy.TenantID]; ok {
		return l
	}
	l := ratelimit.New(ratelimit.Config{
		Max:    policy.RateLimit.MaxPerWindow,
		Window: time.Duration(policy.RateLimit.WindowSeconds) * time.Second,
	})
	s.limiters[policy.TenantID] = l
	return l
}

func validateSubmission(sub *Submission) *Rejection {
	sub.TargetIdentifier = strings.TrimSpace(sub.TargetIdentifier)
	sub.Reason = strings.TrimSpace(sub.Reason)

	switch {
	case sub.TargetIdentifier == "":
		return invalid("target_identifier", "target is required")
	case len(sub.TargetIdentifier) > maxTargetLen:
		return invalid("target_identifier", fmt.Sprintf("target must be at most %d characters", maxTargetLen))
	case hasControlChars(sub.TargetIdentifier):
		return invalid("target_identifier", "target contains invalid characters")
	case sub.Reason == "":
		return invalid("reason", "reason is required")
	case len(sub.Reason) > maxReasonLen:
		return invalid("reason", fmt.Sprintf("reason must be at most %d characters", maxReasonLen))
	case len(sub.Evidence) > maxEvidenceLen:
		return invalid("evidence", fmt.Sprintf("evidence must be at most %d characters", maxEvidenceLen))
	}
	if _, ok := models.CategorySeverity[sub.Category]; !ok {
		return invalid("category", "unknown report category")
	}
	return nil
}

func invalid(field, message string) *Rejection {
	return &Rejection{Reason: ReasonInvalidInput, Field: field, Message: message}
}

func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// newToken returns a short opaque report token.
func newToken() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in much deeper trouble.
		panic(err)
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
}

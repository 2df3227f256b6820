package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/models"
	"github.com/crossguard/crossguard/internal/reputation"
	"github.com/crossguard/crossguard/internal/tenant"
	"gorm.io/gorm"
)

var (
	ErrReportNotFound   = errors.New("report not found")
	ErrAlreadyFinalized = errors.New("report is already finalized")
	ErrSessionExpired   = errors.New("validation window has expired")
	ErrNotExpired       = errors.New("only expired sessions can be finalized manually")
	ErrNoEligibleVoters = errors.New("tenant has no eligible reviewers")
)

// VoteOutcome describes the session after a cast vote.
type VoteOutcome struct {
	State          State   `json:"state"`
	AlreadyVoted   bool    `json:"already_voted"`
	Approvers      int     `json:"approvers"`
	Rejecters      int     `json:"rejecters"`
	EligibleVoters int     `json:"eligible_voters"`
	ApprovalPct    float64 `json:"approval_pct"`
	RejectionPct   float64 `json:"rejection_pct"`
}

// Manager owns the per-report validation sessions. Sessions are created
// lazily from the pending report row, so a restart loses cast votes but not
// reports; voting simply starts over, which is documented behavior.
type Manager struct {
	db       *gorm.DB
	registry *tenant.Registry
	agg      *reputation.Aggregator
	retries  *reputation.RetryQueue
	trail    *audit.Trail

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func NewManager(db *gorm.DB, registry *tenant.Registry, agg *reputation.Aggregator, retries *reputation.RetryQueue, trail *audit.Trail) *Manager {
	return &Manager{
		db:       db,
		registry: registry,
		agg:      agg,
		retries:  retries,
		trail:    trail,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// CastVote records an approve or reject vote and finalizes the session when
// a quorum is reached. Approval quorum is evaluated before rejection quorum,
// so with tiny voter counts a vote satisfying both finalizes as validated.
func (m *Manager) CastVote(token, tenantID, moderatorID, moderatorName string, approve bool) (*VoteOutcome, error) {
	policy := m.registry.Get(tenantID)
	if policy == nil {
		return nil, fmt.Errorf("unknown tenant %q", tenantID)
	}

	sess, report, err := m.sessionFor(token, tenantID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	window := time.Duration(policy.ValidationTimeoutHours) * time.Hour
	if sess.state == StateOpen && sess.expiredBy(m.now(), window) {
		sess.state = StateExpired
	}
	if sess.state == StateExpired {
		return nil, ErrSessionExpired
	}
	if sess.state.Terminal() {
		return nil, ErrAlreadyFinalized
	}

	already := sess.record(moderatorID, approve)

	// The denominator is the live reviewer count, not a snapshot: grants
	// and revocations mid-vote change the math for subsequent votes.
	eligible, err := m.eligibleVoterCount(tenantID)
	if err != nil {
		return nil, err
	}
	if eligible == 0 {
		return nil, ErrNoEligibleVoters
	}

	outcome := &VoteOutcome{
		State:          sess.state,
		AlreadyVoted:   already,
		Approvers:      len(sess.approvers),
		Rejecters:      len(sess.rejecters),
		EligibleVoters: eligible,
		ApprovalPct:    pct(len(sess.approvers), eligible),
		RejectionPct:   pct(len(sess.rejecters), eligible),
	}

	threshold := float64(policy.QuorumThresholdPct)
	switch {
	case outcome.ApprovalPct >= threshold:
		if err := m.finalize(sess, report, true, moderatorID, moderatorName, audit.ActionReportValidated); err != nil {
			return nil, err
		}
	case outcome.RejectionPct >= threshold:
		if err := m.finalize(sess, report, false, moderatorID, moderatorName, audit.ActionReportRejected); err != nil {
			return nil, err
		}
	}
	outcome.State = sess.state
	return outcome, nil
}

// FinalizeExpired lets a moderator settle a session whose validation window
// ran out without quorum. Only Expired sessions qualify.
func (m *Manager) FinalizeExpired(token, tenantID, moderatorID, moderatorName string, validate bool) error {
	policy := m.registry.Get(tenantID)
	if policy == nil {
		return fmt.Errorf("unknown tenant %q", tenantID)
	}

	sess, report, err := m.sessionFor(token, tenantID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	window := time.Duration(policy.ValidationTimeoutHours) * time.Hour
	if sess.state == StateOpen && sess.expiredBy(m.now(), window) {
		sess.state = StateExpired
	}
	switch sess.state {
	case StateExpired:
	case StateFinalizedValidated, StateFinalizedRejected:
		return ErrAlreadyFinalized
	default:
		return ErrNotExpired
	}

	return m.finalize(sess, report, validate, moderatorID, moderatorName, audit.ActionManualFinalized)
}

// finalize flips the report status, records reputation for validations, and
// writes the audit entry. Callers hold the session lock.
func (m *Manager) finalize(sess *session, report *models.Report, validated bool, moderatorID, moderatorName, action string) error {
	status := models.ReportStatusRejected
	state := StateFinalizedRejected
	if validated {
		status = models.ReportStatusValidated
		state = StateFinalizedValidated
	}

	now := m.now().UTC()
	result := m.db.Model(&models.Report{}).
		Where("id = ? AND status = ?", report.ID, models.ReportStatusPending).
		Updates(map[string]interface{}{
			"status":                  status,
			"finalized_at":            now,
			"finalizing_moderator_id": moderatorID,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize report: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost a race with another finalization path.
		return ErrAlreadyFinalized
	}

	sess.state = state
	report.Status = status
	report.FinalizedAt = &now
	report.FinalizingModeratorID = moderatorID

	details := map[string]string{
		"category": report.Category,
		"target":   report.TargetIdentifier,
	}
	if validated {
		severity := models.CategorySeverity[report.Category]
		details["severity"] = severity
		if _, err := m.agg.RecordValidated(report.TargetIdentifier, report.TenantID, severity); err != nil {
			if errors.Is(err, reputation.ErrStoreUnavailable) {
				// Finalized locally; the outcome is queued, never dropped.
				m.retries.Enqueue(report.TargetIdentifier, report.TenantID, severity, err)
			} else {
				slog.Error("failed to record reputation", "token", report.Token, "error", err)
			}
		}
	}

	if err := m.trail.Append(report.TenantID, action, moderatorID, moderatorName, details, report.Token); err != nil {
		slog.Error("failed to audit finalization", "token", report.Token, "error", err)
	}

	slog.Info("report finalized", "tenant_id", report.TenantID, "token", report.Token, "status", status)
	return nil
}

// sessionFor returns (creating if needed) the session for a report token.
func (m *Manager) sessionFor(token, tenantID string) (*session, *models.Report, error) {
	var report models.Report
	err := m.db.Scopes(tenant.ForTenant(tenantID)).Where("token = ?", token).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrReportNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load report: %w", err)
	}
	if report.Status != models.ReportStatusPending {
		return nil, nil, ErrAlreadyFinalized
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		sess = newSession(token, tenantID, report.CreatedAt)
		m.sessions[token] = sess
	}
	return sess, &report, nil
}

// Snapshot exposes the current session state for a report, for listings.
func (m *Manager) Snapshot(token, tenantID string) (*VoteOutcome, error) {
	policy := m.registry.Get(tenantID)
	if policy == nil {
		return nil, fmt.Errorf("unknown tenant %q", tenantID)
	}
	sess, _, err := m.sessionFor(token, tenantID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	eligible, err := m.eligibleVoterCount(tenantID)
	if err != nil {
		return nil, err
	}
	state := sess.state
	window := time.Duration(policy.ValidationTimeoutHours) * time.Hour
	if state == StateOpen && sess.expiredBy(m.now(), window) {
		state = StateExpired
	}
	return &VoteOutcome{
		State:          state,
		Approvers:      len(sess.approvers),
		Rejecters:      len(sess.rejecters),
		EligibleVoters: eligible,
		ApprovalPct:    pct(len(sess.approvers), eligible),
		RejectionPct:   pct(len(sess.rejecters), eligible),
	}, nil
}

func (m *Manager) eligibleVoterCount(tenantID string) (int, error) {
	var count int64
	err := m.db.Model(&models.Reviewer{}).Scopes(tenant.ForTenant(tenantID)).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count reviewers: %w", err)
	}
	return int(count), nil
}

func pct(votes, eligible int) float64 {
	if eligible == 0 {
		return 0
	}
	return float64(votes) / float64(eligible) * 100
}

package validation

import (
	"log/slog"
	"time"

	"github.com/crossguard/crossguard/internal/audit"
	"github.com/crossguard/crossguard/internal/models"
)

// StartSweeper expires open sessions whose validation window ran out. The
// sweep is cooperative polling on a coarse interval; a session already gone
// or finalized by the time the sweep runs is a normal outcome.
func (m *Manager) StartSweeper(interval time.Duration, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-done:
				return
			}
		}
	}()
}

func (m *Manager) sweep() {
	var pending []models.Report
	if err := m.db.Where("status = ?", models.ReportStatusPending).Find(&pending).Error; err != nil {
		slog.Error("session sweep failed to list pending reports", "error", err)
		return
	}

	now := m.now()
	for i := range pending {
		report := &pending[i]
		policy := m.registry.Get(report.TenantID)
		if policy == nil {
			continue
		}
		window := time.Duration(policy.ValidationTimeoutHours) * time.Hour
		if !now.After(report.CreatedAt.Add(window)) {
			continue
		}

		m.mu.Lock()
		sess, ok := m.sessions[report.Token]
		if !ok {
			sess = newSession(report.Token, report.TenantID, report.CreatedAt)
			m.sessions[report.Token] = sess
		}
		m.mu.Unlock()

		sess.mu.Lock()
		fresh := sess.state == StateOpen
		if fresh {
			sess.state = StateExpired
		}
		sess.mu.Unlock()

		// The report row stays pending: expiry does not imply rejection,
		// and a reviewer can still finalize manually later.
		if fresh {
			if err := m.trail.Append(report.TenantID, audit.ActionReportExpired, "system", "system",
				map[string]string{"category": report.Category}, report.Token); err != nil {
				slog.Error("failed to audit session expiry", "token", report.Token, "error", err)
			}
			slog.Info("validation session expired", "tenant_id", report.TenantID, "token", report.Token)
		}
	}
}

package reputation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/crossguard/crossguard/internal/models"
	"github.com/google/uuid"
)

const maxRetryAttempts = 10

// RetryQueue holds reputation updates that could not reach the store, so a
// finalized validation outcome is never lost. Entries are kept in memory and
// mirrored to the reputation_retries table best-effort, surviving restarts
// when the database itself recovered in between.
type RetryQueue struct {
	mu         sync.Mutex
	pending    []models.ReputationRetry
	aggregator *Aggregator
}

func NewRetryQueue(aggregator *Aggregator) *RetryQueue {
	return &RetryQueue{aggregator: aggregator}
}

// Enqueue registers a failed update for retry.
func (q *RetryQueue) Enqueue(targetIdentifier, tenantID, severityTier string, cause error) {
	entry := models.ReputationRetry{
		TargetIdentifier: targetIdentifier,
		TenantID:         tenantID,
		SeverityTier:     severityTier,
		LastError:        cause.Error(),
	}

	// Best-effort mirror before queueing: the in-memory copy must carry the
	// mirrored row's ID, or drain would treat them as two distinct updates.
	if err := q.aggregator.db.Create(&entry).Error; err != nil {
		slog.Warn("failed to persist reputation retry", "tenant_id", tenantID, "error", err)
	}

	q.mu.Lock()
	q.pending = append(q.pending, entry)
	q.mu.Unlock()

	slog.Warn("reputation update queued for retry", "tenant_id", tenantID, "error", cause)
}

// Start runs the retry loop until done is closed.
func (q *RetryQueue) Start(interval time.Duration, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.drain()
			case <-done:
				return
			}
		}
	}()
}

func (q *RetryQueue) drain() {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	// Pick up mirrored entries from a previous process run.
	var persisted []models.ReputationRetry
	if err := q.aggregator.db.Find(&persisted).Error; err == nil {
		for _, p := range persisted {
			if !containsRetry(batch, p) {
				batch = append(batch, p)
			}
		}
	}

	for _, entry := range batch {
		_, err := q.aggregator.RecordValidated(entry.TargetIdentifier, entry.TenantID, entry.SeverityTier)
		if err != nil {
			entry.Attempts++
			entry.LastError = err.Error()
			if entry.Attempts < maxRetryAttempts {
				q.mu.Lock()
				q.pending = append(q.pending, entry)
				q.mu.Unlock()
			} else {
				slog.Error("reputation retry abandoned",
					"tenant_id", entry.TenantID,
					"attempts", entry.Attempts,
					"error", err)
			}
			continue
		}
		if entry.ID != uuid.Nil {
			q.aggregator.db.Delete(&models.ReputationRetry{}, "id = ?", entry.ID)
		}
	}
}

func containsRetry(list []models.ReputationRetry, candidate models.ReputationRetry) bool {
	for _, e := range list {
		if candidate.ID == e.ID && candidate.ID != uuid.Nil {
			return true
		}
	}
	return false
}

package logging

import (
	"log/slog"
	"time"

	"github.com/crossguard/crossguard/internal/models"
	"gorm.io/gorm"
)

// logRetentionDays bounds the system_logs table. Only the operational
// security sink is pruned; the moderator audit trail is append-only and
// never touched here.
const logRetentionDays = 30

// StartCleanup runs a daily goroutine deleting system_logs rows past the
// retention window, until done is closed.
func StartCleanup(db *gorm.DB, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -logRetentionDays)
				result := db.Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
				if result.Error != nil {
					slog.Error("log cleanup failed", "error", result.Error)
				} else if result.RowsAffected > 0 {
					slog.Info("log cleanup completed", "deleted", result.RowsAffected)
				}
			case <-done:
				return
			}
		}
	}()
}

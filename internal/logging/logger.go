package logging

import (
	"log/slog"
	"os"
)

// Setup initializes the global slog logger with JSON output to stdout.
func Setup() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// SecurityEvent logs a denied or suspicious action (failed permission checks,
// forged tenant headers). These are warnings, not crashes.
func SecurityEvent(action, tenantID, actorID string, attrs ...any) {
	base := []any{"action", action, "tenant_id", tenantID, "actor_id", actorID}
	slog.Warn("security event", append(base, attrs...)...)
}

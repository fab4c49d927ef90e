package utils

import (
	"context"
	"log/slog"
)

// NonCritical runs a best-effort action. A failure is logged at warn level and
// reported through the return value, but is never propagated as an error.
func NonCritical(ctx context.Context, logger *slog.Logger, action string, fn func(context.Context) error) bool {
	if err := fn(ctx); err != nil {
		logger.Warn("Non-critical action failed, continuing",
			slog.String("action", action),
			slog.Any("error", err))
		return false
	}
	logger.Debug("Non-critical action completed", slog.String("action", action))
	return true
}

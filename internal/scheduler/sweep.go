package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LeventeLantos/health-assistant/internal/metrics"
)

// IdleCloser closes conversations whose user has been silent since before
// idleSince and reports how many were closed.
type IdleCloser interface {
	CloseIdleConversations(ctx context.Context, idleSince time.Time) (int, error)
}

// IdleSweep returns a TickFunc that ends conversations idle for longer than
// idleAfter. The next inbound message of such a user opens a new one.
func IdleSweep(store IdleCloser, idleAfter time.Duration, now func() time.Time, logger *slog.Logger) TickFunc {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context) error {
		cutoff := now().Add(-idleAfter)

		closed, err := store.CloseIdleConversations(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("close idle conversations: %w", err)
		}
		if closed > 0 {
			metrics.ConversationsClosed.Add(float64(closed))
			logger.Info("idle conversations closed", "count", closed, "idle_since", cutoff)
		}
		return nil
	}
}

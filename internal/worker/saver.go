package worker

import (
	"context"
	"log/slog"
	"time"
)

// StateSaver snapshots the live browser session to durable storage.
type StateSaver interface {
	SaveCurrentState() error
}

// RunStateSaver persists the browser session on a fixed interval for the
// lifetime of ctx, bounding the re-authentication work needed after a
// restart. A failed save is logged and the schedule continues.
func RunStateSaver(ctx context.Context, saver StateSaver, interval time.Duration) {
	slog.Info("periodic state saver started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("periodic state saver stopped")
			return
		case <-ticker.C:
			if err := saver.SaveCurrentState(); err != nil {
				slog.Error("error in periodic state saver", "err", err)
			}
		}
	}
}

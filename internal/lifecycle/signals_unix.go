//go:build !windows

package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// WatchSignals treats SIGCONT as the agent returning to the foreground.
// It blocks until ctx is cancelled.
func WatchSignals(ctx context.Context, b *Broadcaster) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGCONT)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			slog.Info("Received SIGCONT, marking application active")
			// SIGSTOP cannot be observed, so the state may still read active
			if b.State() == StateActive {
				b.Set(StateInactive)
			}
			b.Set(StateActive)
		}
	}
}

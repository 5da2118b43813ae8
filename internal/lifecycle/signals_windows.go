//go:build windows

package lifecycle

import "context"

// WatchSignals has no job-control signals to watch on Windows; it blocks until ctx is cancelled.
func WatchSignals(ctx context.Context, _ *Broadcaster) {
	<-ctx.Done()
}

package coordinator

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/toolhive-update-agent/internal/lifecycle"
)

// resumeQueueSize bounds resume signals queued while a synchronize call is running
const resumeQueueSize = 16

// resumeSource turns lifecycle callbacks into a channel with one signal per
// transition into the active state. It owns its subscription.
type resumeSource struct {
	notifier lifecycle.Notifier
	sub      lifecycle.Subscription
	ch       chan struct{}
}

func newResumeSource(notifier lifecycle.Notifier, size int) *resumeSource {
	s := &resumeSource{
		notifier: notifier,
		ch:       make(chan struct{}, size),
	}
	s.sub = notifier.Subscribe(s.onStateChange)
	return s
}

func (s *resumeSource) onStateChange(newState lifecycle.State) {
	if newState != lifecycle.StateActive {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
		slog.Warn("Resume queue full, coalescing resume signal", "queue_size", cap(s.ch))
	}
}

// C returns the signal channel; nil (never ready) for a disabled source
func (s *resumeSource) C() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close releases the lifecycle subscription
func (s *resumeSource) Close() {
	if s == nil {
		return
	}
	s.notifier.Unsubscribe(s.sub)
}

// intervalSource fires once per interval, measured from the end of the previous dispatch
type intervalSource struct {
	interval time.Duration
	timer    clock.Timer
}

func newIntervalSource(clk clock.Clock, interval time.Duration) *intervalSource {
	if interval <= 0 {
		return nil
	}
	return &intervalSource{
		interval: interval,
		timer:    clk.NewTimer(interval),
	}
}

// C returns the timer channel; nil (never ready) for a disabled source
func (s *intervalSource) C() <-chan time.Time {
	if s == nil {
		return nil
	}
	return s.timer.C()
}

// Rearm restarts the full interval, discarding a tick that fired during the dispatch
func (s *intervalSource) Rearm() {
	if s == nil {
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timer.C():
		default:
		}
	}
	s.timer.Reset(s.interval)
}

// Stop releases the timer
func (s *intervalSource) Stop() {
	if s == nil {
		return
	}
	s.timer.Stop()
}

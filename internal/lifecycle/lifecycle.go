// Package lifecycle tracks whether the host application is in the foreground
// and notifies subscribers when that changes.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is the application lifecycle state
type State string

const (
	// StateActive means the application is in the foreground
	StateActive State = "active"

	// StateBackground means the application is running in the background
	StateBackground State = "background"

	// StateInactive means the application is transitioning or suspended
	StateInactive State = "inactive"
)

// ParseState converts a string into a known State
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateActive, StateBackground, StateInactive:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown lifecycle state %q (expected %s, %s or %s)",
			s, StateActive, StateBackground, StateInactive)
	}
}

// Subscription identifies a registered listener
type Subscription struct {
	id uint64
}

// Notifier delivers lifecycle state changes to subscribers
type Notifier interface {
	// Subscribe registers fn to be called with every new state
	Subscribe(fn func(State)) Subscription

	// Unsubscribe removes a listener; unknown subscriptions are ignored
	Unsubscribe(sub Subscription)
}

// Broadcaster is a Notifier whose state is set by the host (API, signals).
// Listeners run synchronously on the goroutine calling Set and must not block.
type Broadcaster struct {
	mu     sync.Mutex
	state  State
	subs   map[uint64]func(State)
	nextID uint64
}

// NewBroadcaster creates a Broadcaster in the given initial state
func NewBroadcaster(initial State) *Broadcaster {
	return &Broadcaster{
		state: initial,
		subs:  make(map[uint64]func(State)),
	}
}

// Subscribe implements Notifier
func (b *Broadcaster) Subscribe(fn func(State)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[b.nextID] = fn
	return Subscription{id: b.nextID}
}

// Unsubscribe implements Notifier
func (b *Broadcaster) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, sub.id)
}

// State returns the current state
func (b *Broadcaster) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Set changes the current state and notifies subscribers.
// Setting the state it already has is a no-op.
func (b *Broadcaster) Set(state State) {
	b.mu.Lock()
	if b.state == state {
		b.mu.Unlock()
		return
	}
	previous := b.state
	b.state = state
	listeners := make([]func(State), 0, len(b.subs))
	for _, fn := range b.subs {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	slog.Debug("Lifecycle state changed", "from", previous, "to", state, "listeners", len(listeners))

	for _, fn := range listeners {
		fn(state)
	}
}

// Subscribers returns the number of registered listeners
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

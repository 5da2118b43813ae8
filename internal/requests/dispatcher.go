// Package requests routes named requests (for example "SYNC") from the control
// API and the CLI to the components waiting on them.
package requests

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
)

const (
	// DefaultQueueSize is the number of undelivered requests kept per name
	DefaultQueueSize = 32

	// MaxNameLength bounds request names accepted by Dispatch
	MaxNameLength = 128

	// DefaultMaxNames bounds the number of queues a dispatcher without
	// registered names creates
	DefaultMaxNames = 64
)

var (
	// ErrInvalidName is returned when a request name is empty, too long or contains whitespace
	ErrInvalidName = errors.New("invalid request name")

	// ErrUnknownName is returned when no queue exists or may be created for a request name
	ErrUnknownName = errors.New("unknown request name")
)

// Dispatcher delivers named requests to their receivers.
type Dispatcher interface {
	// Dispatch enqueues one request for name
	Dispatch(name string) error

	// Requests returns the channel on which requests for name are delivered.
	// Each receive consumes exactly one request.
	Requests(name string) <-chan struct{}
}

// ChannelDispatcher is a Dispatcher backed by one bounded channel per name.
// Requests dispatched before anyone listens are retained up to the queue size.
//
// With registered names (WithNames) only those names are accepted by Dispatch.
// Otherwise queues are created on first use, up to DefaultMaxNames.
type ChannelDispatcher struct {
	mu         sync.Mutex
	queues     map[string]chan struct{}
	queueSize  int
	registered bool
	maxNames   int
}

// Option configures a ChannelDispatcher
type Option func(*ChannelDispatcher)

// WithQueueSize sets the per-name queue size
func WithQueueSize(size int) Option {
	return func(d *ChannelDispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithNames registers the names the dispatcher accepts. Dispatch rejects any
// other name with ErrUnknownName. Empty names are skipped.
func WithNames(names ...string) Option {
	return func(d *ChannelDispatcher) {
		d.registered = true
		for _, name := range names {
			if name != "" {
				d.queues[name] = nil
			}
		}
	}
}

// NewDispatcher creates a ChannelDispatcher
func NewDispatcher(opts ...Option) *ChannelDispatcher {
	d := &ChannelDispatcher{
		queues:    make(map[string]chan struct{}),
		queueSize: DefaultQueueSize,
		maxNames:  DefaultMaxNames,
	}
	for _, opt := range opts {
		opt(d)
	}
	// Queues are sized once every option has run
	for name := range d.queues {
		d.queues[name] = make(chan struct{}, d.queueSize)
	}
	return d
}

// ValidateName checks that name can be used as a request name
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, MaxNameLength)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: name contains whitespace", ErrInvalidName)
	}
	return nil
}

// Dispatch enqueues one request for name. When the queue is full the request is
// coalesced with the ones already pending.
func (d *ChannelDispatcher) Dispatch(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	q, err := d.dispatchQueue(name)
	if err != nil {
		return err
	}

	select {
	case q <- struct{}{}:
		slog.Debug("Request dispatched", "request", name)
	default:
		slog.Warn("Request queue full, coalescing request", "request", name, "queue_size", d.queueSize)
	}
	return nil
}

// Requests returns the delivery channel for name. Receivers are trusted, so
// the queue is created even when name was not registered.
func (d *ChannelDispatcher) Requests(name string) <-chan struct{} {
	return d.queue(name)
}

// Pending returns the number of undelivered requests for name
func (d *ChannelDispatcher) Pending(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues[name])
}

// dispatchQueue returns the queue a request for name may be sent to
func (d *ChannelDispatcher) dispatchQueue(name string) (chan struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, ok := d.queues[name]; ok {
		return q, nil
	}
	if d.registered {
		return nil, fmt.Errorf("%w: %s", ErrUnknownName, name)
	}
	if len(d.queues) >= d.maxNames {
		return nil, fmt.Errorf("%w: %s (limit of %d names reached)", ErrUnknownName, name, d.maxNames)
	}
	q := make(chan struct{}, d.queueSize)
	d.queues[name] = q
	return q, nil
}

func (d *ChannelDispatcher) queue(name string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.queues[name]
	if !ok {
		q = make(chan struct{}, d.queueSize)
		d.queues[name] = q
	}
	return q
}

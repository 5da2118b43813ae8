// Package writer records the outcome of every synchronize call
package writer

import (
	"context"
	"time"
)

// Entry describes one synchronize call
type Entry struct {
	Trigger    string
	Status     string
	Label      string
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// HistoryWriter persists sync history entries
type HistoryWriter interface {
	// Record stores one entry
	Record(ctx context.Context, entry *Entry) error
}

type noopHistoryWriter struct{}

// NewNoopHistoryWriter returns a HistoryWriter that discards entries
func NewNoopHistoryWriter() HistoryWriter {
	return noopHistoryWriter{}
}

func (noopHistoryWriter) Record(context.Context, *Entry) error {
	return nil
}

package requests

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// WatchSpool turns files dropped into dir into requests. A file named NAME
// dispatches one request for NAME and is removed. Files starting with a dot are
// ignored so writers can create a temporary file and rename it into place.
// It blocks until ctx is cancelled.
func WatchSpool(ctx context.Context, dir string, d Dispatcher) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create request spool directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch request spool directory: %w", err)
	}
	slog.Info("Watching request spool directory", "dir", dir)

	// Files dropped while the agent was down
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read request spool directory: %w", err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			consumeSpoolFile(filepath.Join(dir, entry.Name()), d)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				consumeSpoolFile(event.Name, d)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.Warn("Request spool watcher error", "error", err)
		}
	}
}

// consumeSpoolFile removes path and dispatches its name. Removing first makes
// the Create and Write events of one file dispatch a single request.
func consumeSpoolFile(path string, d Dispatcher) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}

	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to remove request spool file", "path", path, "error", err)
		}
		return
	}

	if err := d.Dispatch(name); err != nil {
		slog.Warn("Ignoring request spool file", "name", name, "error", err)
		return
	}
	slog.Debug("Request dispatched from spool", "name", name)
}

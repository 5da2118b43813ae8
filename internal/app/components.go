package app

import (
	"github.com/stacklok/toolhive-update-agent/internal/app/storage"
	"github.com/stacklok/toolhive-update-agent/internal/lifecycle"
	"github.com/stacklok/toolhive-update-agent/internal/requests"
	"github.com/stacklok/toolhive-update-agent/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator decides when a synchronize call runs
	SyncCoordinator coordinator.Coordinator

	// Requests delivers named requests from the API to the coordinator
	Requests *requests.ChannelDispatcher

	// Lifecycle tracks the foreground state of the agent
	Lifecycle *lifecycle.Broadcaster

	// StorageFactory owns the storage backend (optional in tests)
	StorageFactory storage.Factory
}

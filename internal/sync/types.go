package sync

import (
	"context"

	"github.com/stacklok/toolhive-update-agent/internal/config"
)

// Status is a step reported by a synchronize call
type Status string

// Status values, in the order a successful install reports them
const (
	StatusCheckingForUpdate  Status = "CheckingForUpdate"
	StatusDownloadingPackage Status = "DownloadingPackage"
	StatusInstallingUpdate   Status = "InstallingUpdate"

	// Terminal statuses
	StatusUpToDate        Status = "UpToDate"
	StatusUpdateIgnored   Status = "UpdateIgnored"
	StatusUpdateInstalled Status = "UpdateInstalled"
	StatusUnknownError    Status = "UnknownError"
)

// IsTerminal reports whether no further status follows s within the same call
func (s Status) IsTerminal() bool {
	switch s {
	case StatusUpToDate, StatusUpdateIgnored, StatusUpdateInstalled, StatusUnknownError:
		return true
	default:
		return false
	}
}

// String returns the status name
func (s Status) String() string {
	return string(s)
}

// Progress reports download progress of an update package
type Progress struct {
	ReceivedBytes int64 `json:"receivedBytes"`
	TotalBytes    int64 `json:"totalBytes"`
}

// StatusFunc observes status transitions. It may be nil.
type StatusFunc func(Status)

// ProgressFunc observes download progress. It may be nil.
type ProgressFunc func(Progress)

// Result contains the outcome of a completed synchronize call
type Result struct {
	// Status is the terminal status of the call
	Status Status

	// Label identifies the package that was installed or ignored, empty when up to date
	Label string

	// PackageHash is the SHA-256 of the package that was installed
	PackageHash string

	// Mandatory reports whether the server flagged the package as mandatory
	Mandatory bool
}

// Synchronizer performs one synchronize round trip with the update service.
// Implementations must be safe to call repeatedly; the coordinator never
// issues overlapping calls.
//
//go:generate mockgen -destination=mocks/mock_synchronizer.go -package=mocks github.com/stacklok/toolhive-update-agent/internal/sync Synchronizer
type Synchronizer interface {
	Synchronize(
		ctx context.Context,
		opts *config.SyncOptions,
		onStatus StatusFunc,
		onProgress ProgressFunc,
	) (*Result, error)
}

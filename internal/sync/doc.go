// Package sync defines the synchronize operation the update agent schedules,
// together with the status and progress values it reports while running.
//
// # Core Interfaces
//
//   - Synchronizer: performs one idempotent round trip with the update service
//     (check, download, install). Implemented by the updater package.
//
// # Coordinator Package
//
// The sync/coordinator subpackage decides when Synchronize is called. It runs
// an optional once-per-installation delay gate followed by a trigger loop fed
// by named requests, lifecycle resume events and a periodic timer.
//
// # Status Reporting
//
// Synchronize reports its progress through two callbacks:
//
//   - StatusFunc receives every Status transition (CheckingForUpdate,
//     DownloadingPackage, InstallingUpdate, and a terminal status)
//   - ProgressFunc receives byte counts while a package is downloaded
//
// Terminal statuses are UpToDate, UpdateIgnored, UpdateInstalled and
// UnknownError; IsTerminal reports which is which.
//
// # State Package
//
// The sync/state subpackage persists small key/value flags (the initial delay
// sentinel, the generated client ID) in a JSON file or in PostgreSQL.
package sync

// Package coordinator decides when the update agent calls its synchronizer.
//
// A coordinator runs in two stages:
//
//  1. Delay gate: when an initial delay or a delay-cancel request name is
//     configured, the first synchronize call is postponed until the delay
//     elapses or the cancel request arrives. The gate runs once per
//     installation; a flag in the state store records that it has been
//     satisfied.
//  2. Trigger loop: after an optional start sync, the loop waits for the
//     first ready source and performs one synchronize call per signal.
//     Sources are named requests (always), lifecycle resume events
//     (syncOnResume) and a timer re-armed after every call (syncOnIntervalSeconds).
//
// # Usage Example
//
//	dispatcher := requests.NewDispatcher()
//	broadcaster := lifecycle.NewBroadcaster(lifecycle.StateActive)
//
//	c := coordinator.New(updater, store, dispatcher, broadcaster, &cfg.Coordinator,
//	    coordinator.WithStatusPersistence(status.NewFileStatusPersistence(cfg.GetDataDir())),
//	)
//
//	go c.Start(ctx)
//
//	// elsewhere: dispatcher.Dispatch("SYNC") or broadcaster.Set(lifecycle.StateActive)
//
//	c.Stop()
//
// # Error Handling
//
// Each synchronize call runs behind its own failure boundary. Errors and
// panics are logged, counted in the status record and metrics, and the loop
// keeps waiting for the next trigger. Calls never overlap, and no call is
// started once the context passed to Start is cancelled.
package coordinator

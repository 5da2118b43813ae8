package status

import "time"

// SyncPhase represents the outcome of the most recent synchronize call
type SyncPhase string

const (
	// SyncPhasePending means no synchronize call has completed yet
	SyncPhasePending SyncPhase = "Pending"

	// SyncPhaseSyncing means a synchronize call is in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means the last synchronize call succeeded
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last synchronize call failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// LoopState is the state of the coordinator's trigger loop
type LoopState string

const (
	// LoopStateIdle means the coordinator has not started
	LoopStateIdle LoopState = "Idle"

	// LoopStateDelaying means the initial delay gate is running
	LoopStateDelaying LoopState = "Delaying"

	// LoopStateWaiting means the loop is waiting for the next trigger
	LoopStateWaiting LoopState = "Waiting"

	// LoopStateDispatching means a synchronize call is running
	LoopStateDispatching LoopState = "Dispatching"

	// LoopStateStopped means the loop has exited
	LoopStateStopped LoopState = "Stopped"
)

// SyncStatus is the agent's view of its synchronization state
type SyncStatus struct {
	// Phase is the outcome of the most recent synchronize call
	Phase SyncPhase `json:"phase"`

	// LoopState is where the trigger loop currently is
	LoopState LoopState `json:"loopState"`

	// Message provides additional information about the last call
	Message string `json:"message,omitempty"`

	// LastAttempt is the start time of the last synchronize call
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of failed calls since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the completion time of the last successful call
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// LastTrigger is the trigger that caused the last call (start, request, resume, interval)
	LastTrigger string `json:"lastTrigger,omitempty"`

	// LastResult is the terminal status reported by the last call (e.g. UpToDate)
	LastResult string `json:"lastResult,omitempty"`

	// Label identifies the last package installed or ignored
	Label string `json:"label,omitempty"`
}

// Clone returns a deep copy of s
func (s *SyncStatus) Clone() *SyncStatus {
	if s == nil {
		return nil
	}
	c := *s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		c.LastAttempt = &t
	}
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		c.LastSyncTime = &t
	}
	return &c
}

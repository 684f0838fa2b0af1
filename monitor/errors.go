package monitor

import (
	"fmt"

	"github.com/kolkov/vmmonitor/object"
	"github.com/kolkov/vmmonitor/thread"
)

// IllegalMonitorStateError reports a locking-protocol violation: an exit by
// a non-owner, or wait/notify without holding the monitor. The operation
// that produced it left all monitor state untouched, so the execution
// engine can surface it as a catchable runtime error and continue.
type IllegalMonitorStateError struct {
	// Op is the operation that was attempted: "unlock", "wait", "notify".
	Op string

	// Reason is the human-readable diagnosis, already naming the threads
	// and object involved.
	Reason string
}

// Error implements the error interface.
func (e *IllegalMonitorStateError) Error() string {
	return "illegal monitor state: " + e.Reason
}

// InterruptedError reports that a monitor wait was ended by an interrupt
// delivered to the waiting thread. It is only surfaced when the caller
// opted in via interruptShouldThrow; otherwise the interruption stays
// recorded on the thread and the wait returns normally.
type InterruptedError struct {
	// ThreadID identifies the interrupted thread.
	ThreadID uint16
}

// Error implements the error interface.
func (e *InterruptedError) Error() string {
	return fmt.Sprintf("wait interrupted on thread %d", e.ThreadID)
}

// IllegalArgumentError reports a malformed wait timeout (negative
// milliseconds or nanoseconds outside [0, 999999]).
type IllegalArgumentError struct {
	Reason string
}

// Error implements the error interface.
func (e *IllegalArgumentError) Error() string {
	return "illegal argument: " + e.Reason
}

// failedUnlock builds the diagnosis for an unlock attempted by a thread
// that does not own the lock, capturing expected versus found owner
// identity. found may come from a racy read; by the time the message is
// read the real owner may have moved on, which the wording allows for.
func failedUnlock(obj *object.Object, expected, found *thread.Thread) *IllegalMonitorStateError {
	var reason string
	switch {
	case found == nil:
		reason = fmt.Sprintf(
			"unlock of unowned monitor on object 0x%08x (a %s) by thread %d (%q)",
			obj.ID(), obj.Class(), expected.ID(), expected.Name())
	default:
		reason = fmt.Sprintf(
			"unlock of monitor on object 0x%08x (a %s) by thread %d (%q), owned by thread %d (%q)",
			obj.ID(), obj.Class(), expected.ID(), expected.Name(), found.ID(), found.Name())
	}
	return &IllegalMonitorStateError{Op: "unlock", Reason: reason}
}

// failedUnlockThin is the thin-lock variant: only the raw owner id is
// known, and resolving it through the registry is itself best-effort.
func failedUnlockThin(reg *thread.Registry, obj *object.Object, expected *thread.Thread, foundID uint16) *IllegalMonitorStateError {
	if foundID == 0 {
		return failedUnlock(obj, expected, nil)
	}
	if found := reg.Lookup(foundID); found != nil {
		return failedUnlock(obj, expected, found)
	}
	reason := fmt.Sprintf(
		"unlock of monitor on object 0x%08x (a %s) by thread %d (%q), owned by exited thread %d",
		obj.ID(), obj.Class(), expected.ID(), expected.Name(), foundID)
	return &IllegalMonitorStateError{Op: "unlock", Reason: reason}
}

// Package thread provides the thread collaborator the monitor subsystem is
// specified against: stable 16-bit identity, the interrupt flag, a park/wake
// primitive with timeout, and the per-thread bookkeeping that thread dumps
// and contention profiling read.
//
// Thread lifecycle and scheduling stay outside this subsystem; a Thread here
// is the identity a running goroutine assumes while executing managed code.
package thread

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolkov/vmmonitor/callsite"
	"github.com/kolkov/vmmonitor/object"
)

// State is the coarse scheduling state reported in thread dumps.
type State int32

const (
	// Runnable means the thread is executing (or ready to).
	Runnable State = iota

	// Blocked means the thread is contending for a monitor enter.
	Blocked

	// Waiting means the thread is in an untimed monitor wait.
	Waiting

	// TimedWaiting means the thread is in a monitor wait with a timeout.
	TimedWaiting
)

// String returns the dump spelling of a state.
func (s State) String() string {
	switch s {
	case Runnable:
		return "RUNNABLE"
	case Blocked:
		return "BLOCKED"
	case Waiting:
		return "WAITING"
	case TimedWaiting:
		return "TIMED_WAITING"
	default:
		return "UNKNOWN"
	}
}

// Thread is one mutator thread as seen by the locking subsystem.
//
// The wake channel is the thread's private signaling primitive: it holds at
// most one token, so a notify or interrupt delivered between the moment a
// waiter releases its monitor and the moment it parks is never lost.
//
// Thread Safety: all methods are safe for concurrent use. The interrupt and
// notify flags are guarded by mu; state and the pending object are atomics
// because dumps read them from other threads without coordination.
type Thread struct {
	id   uint16
	name string

	// wake carries at most one pending wake token.
	wake chan struct{}

	mu          sync.Mutex
	interrupted bool
	notified    bool

	state   atomic.Int32
	pending atomic.Pointer[object.Object]

	frameMu   sync.Mutex
	curMethod *callsite.Method
	curPC     uint32
}

// ID returns the thread's stable 16-bit identity. Never 0; id 0 is reserved
// by the lock word to mean "unheld".
func (t *Thread) ID() uint16 {
	return t.id
}

// Name returns the thread's human-readable name for dumps.
func (t *Thread) Name() string {
	return t.name
}

// State returns the thread's current coarse state. Racy snapshot, intended
// for dumps only.
func (t *Thread) State() State {
	return State(t.state.Load())
}

// PendingObject returns the object this thread is waiting on or blocked
// entering, nil when runnable. Racy snapshot for dumps.
func (t *Thread) PendingObject() *object.Object {
	return t.pending.Load()
}

// SetCurrentFrame records the frame the thread is executing. The execution
// engine maintains this; the monitor reads it to attribute lock
// acquisitions to a call site.
func (t *Thread) SetCurrentFrame(m *callsite.Method, pc uint32) {
	t.frameMu.Lock()
	t.curMethod = m
	t.curPC = pc
	t.frameMu.Unlock()
}

// CurrentFrame returns the last frame recorded by SetCurrentFrame. The
// method is nil when the stack is empty (e.g. a lock taken by the runtime
// itself).
func (t *Thread) CurrentFrame() (*callsite.Method, uint32) {
	t.frameMu.Lock()
	defer t.frameMu.Unlock()
	return t.curMethod, t.curPC
}

// Interrupt sets the thread's interrupt flag and wakes it if parked. The
// flag is sticky: it stays set until consumed by ConsumeInterrupt.
func (t *Thread) Interrupt() {
	t.mu.Lock()
	t.interrupted = true
	t.mu.Unlock()
	t.postWake()
}

// IsInterrupted reports the interrupt flag without clearing it.
func (t *Thread) IsInterrupted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interrupted
}

// ConsumeInterrupt atomically tests and clears the interrupt flag,
// reporting whether it was set.
func (t *Thread) ConsumeInterrupt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.interrupted
	t.interrupted = false
	return was
}

// NotifyWake marks the thread as notified and delivers a wake token. Called
// by Monitor.Notify with the monitor's internal lock held, so at most one
// notifier targets the thread while it is in a wait set.
func (t *Thread) NotifyWake() {
	t.mu.Lock()
	t.notified = true
	t.mu.Unlock()
	t.postWake()
}

// WasNotified atomically tests and clears the notified flag.
func (t *Thread) WasNotified() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.notified
	t.notified = false
	return was
}

// BeginWait prepares the thread to park for a monitor wait on obj. It must
// be called before the thread releases the monitor: it clears any stale
// notified flag and wake token from a previous wait, then publishes the
// waiting state for dumps. timed selects the dump state only.
func (t *Thread) BeginWait(obj *object.Object, timed bool) {
	t.mu.Lock()
	t.notified = false
	t.mu.Unlock()
	t.drainWake()

	t.pending.Store(obj)
	if timed {
		t.state.Store(int32(TimedWaiting))
	} else {
		t.state.Store(int32(Waiting))
	}
}

// EndWait clears the waiting state published by BeginWait.
func (t *Thread) EndWait() {
	t.pending.Store(nil)
	t.state.Store(int32(Runnable))
}

// BeginContended publishes that the thread is blocked entering obj's
// monitor. Dump bookkeeping only; the actual blocking happens on the
// monitor's internal lock.
func (t *Thread) BeginContended(obj *object.Object) {
	t.pending.Store(obj)
	t.state.Store(int32(Blocked))
}

// EndContended clears the state published by BeginContended.
func (t *Thread) EndContended() {
	t.pending.Store(nil)
	t.state.Store(int32(Runnable))
}

// Park blocks the calling thread until a wake token arrives or the timeout
// elapses. timeout <= 0 parks indefinitely. A token posted before Park is
// consumed immediately; timeout expiry is indistinguishable from a spurious
// wake, exactly as the wait protocol requires.
func (t *Thread) Park(timeout time.Duration) {
	if timeout <= 0 {
		<-t.wake
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.wake:
	case <-timer.C:
	}
}

// postWake delivers a wake token if none is pending.
func (t *Thread) postWake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// drainWake discards a stale wake token, if any.
func (t *Thread) drainWake() {
	select {
	case <-t.wake:
	default:
	}
}

// Package monitor implements per-object mutual exclusion and wait/notify
// signaling for a managed-language VM: the semantics behind a high-level
// language's synchronized blocks and condition waits.
//
// Two cooperating representations exist. A thin lock lives entirely inside
// the object's 32-bit header word (see the lockword package) and handles
// the common uncontended, single-owner case without any allocation. The
// first contended acquisition, or the first wait(), inflates the lock into
// a heap-allocated Monitor that carries an owner, a recursion count, a wait
// set and profiling metadata. Inflation is one-way for the lifetime of the
// object.
//
// Every live Monitor is registered with a MonitorList so the garbage
// collector can reclaim monitors whose backing object has been collected.
//
// All operations are methods on a System handle, which holds the Init-time
// configuration (contention profiling threshold, sensitive-thread hook,
// event sink) and the process-wide registries.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolkov/vmmonitor/callsite"
	"github.com/kolkov/vmmonitor/object"
	"github.com/kolkov/vmmonitor/thread"
)

// Monitor is the fat lock backing one object that has experienced
// contention or a wait(). Monitors are created only by the inflation path
// and destroyed only by the MonitorList sweep; nothing else may construct
// or drop one.
//
// Field guarding:
//   - owner is written only under mu by the thread performing a successful
//     enter/exit, but read racily elsewhere for diagnostics, so it is an
//     atomic pointer.
//   - lockCount, waitSet and the locking call site are guarded by mu.
//   - obj and id are immutable for the monitor's lifetime.
type Monitor struct {
	id  uint32
	obj *object.Object

	mu   sync.Mutex
	cond *sync.Cond // contention queue: threads blocked in enter

	owner atomic.Pointer[thread.Thread]

	// lockCount is the owner's recursion depth; 0 means unlocked.
	lockCount uint32

	// waitSet holds threads blocked in wait() on this monitor, in arrival
	// order. Membership changes only via appendToWaitSet/removeFromWaitSet
	// and the notify pop.
	waitSet []*thread.Thread

	// lockingMethod/lockingPC record where the current owner acquired the
	// lock, for contention sampling and lock dumps. lockingMethod may be
	// nil when the lock was taken with no managed frame on the stack.
	lockingMethod *callsite.Method
	lockingPC     uint32
}

// newMonitor allocates a monitor for obj. The caller (inflation) seeds
// ownership and registers the monitor before publishing it in the lock
// word, so no other thread can observe a half-built monitor.
func newMonitor(obj *object.Object) *Monitor {
	m := &Monitor{obj: obj}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// seedOwner transfers thin-lock ownership into a freshly built, not yet
// published monitor. count is the full fat-lock depth (thin re-entries plus
// the initial hold). No locking: the monitor is still private to the
// inflating thread.
func (m *Monitor) seedOwner(owner *thread.Thread, count uint32) {
	m.owner.Store(owner)
	m.lockCount = count
	if owner != nil {
		m.lockingMethod, m.lockingPC = owner.CurrentFrame()
	}
}

// ID returns the monitor's registry handle (the fat lock word payload).
func (m *Monitor) ID() uint32 {
	return m.id
}

// Object returns the heap object this monitor backs. Used only for logging
// and identity.
func (m *Monitor) Object() *object.Object {
	return m.obj
}

// Owner returns the owning thread WITHOUT acquiring the monitor's internal
// lock. Best-effort, possibly stale; diagnostics only. The authoritative
// owner is only observable by the thread holding the monitor.
func (m *Monitor) Owner() *thread.Thread {
	return m.owner.Load()
}

// lockingSite snapshots the current owner's acquisition call site.
func (m *Monitor) lockingSite() (*callsite.Method, uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockingMethod, m.lockingPC
}

// lock acquires the monitor for self, blocking while another thread holds
// it. Recursive acquisition by the owner just deepens lockCount.
//
// While blocked, the elapsed wait is measured; once the lock is acquired,
// the wait is handed to the System's contention profiler together with a
// snapshot of where the then-owner had acquired the lock.
func (m *Monitor) lock(self *thread.Thread, sys *System) {
	m.mu.Lock()

	if m.owner.Load() == nil {
		m.takeOwnership(self)
		m.mu.Unlock()
		return
	}
	if m.owner.Load() == self {
		m.lockCount++
		m.mu.Unlock()
		return
	}

	// Contended: block on the internal lock's wait primitive until
	// ownership transfers.
	self.BeginContended(m.obj)
	start := time.Now()
	var ownerMethod *callsite.Method
	var ownerPC uint32
	for m.owner.Load() != nil {
		// Snapshot the current owner's acquisition site before sleeping;
		// by the time we wake and report contention the owner is gone.
		ownerMethod, ownerPC = m.lockingMethod, m.lockingPC
		m.cond.Wait()
	}
	m.takeOwnership(self)
	self.EndContended()
	m.mu.Unlock()

	sys.logContention(self, m, time.Since(start), ownerMethod, ownerPC)
}

// takeOwnership installs self as owner with depth 1 and records the
// acquiring call site. Caller holds mu and has verified the monitor is
// unheld.
func (m *Monitor) takeOwnership(self *thread.Thread) {
	m.owner.Store(self)
	m.lockCount = 1
	m.lockingMethod, m.lockingPC = self.CurrentFrame()
}

// unlock releases one level of self's hold. Returns whether the monitor is
// now fully released. An unlock by a non-owner mutates nothing and returns
// the FailedUnlock diagnosis as an IllegalMonitorStateError.
func (m *Monitor) unlock(self *thread.Thread) (bool, error) {
	m.mu.Lock()

	owner := m.owner.Load()
	if owner != self {
		m.mu.Unlock()
		return false, failedUnlock(m.obj, self, owner)
	}

	m.lockCount--
	if m.lockCount > 0 {
		m.mu.Unlock()
		return false, nil
	}

	m.owner.Store(nil)
	m.lockingMethod, m.lockingPC = nil, 0
	m.cond.Signal() // wake one blocked acquirer, if any
	m.mu.Unlock()
	return true, nil
}

// wait implements the wait() protocol on an already-fat monitor: release
// the monitor fully, park until notified, timed out or interrupted, then
// re-acquire and restore the saved recursion depth.
//
// ms and ns are already validated by the System entry point; both zero
// means wait indefinitely.
func (m *Monitor) wait(self *thread.Thread, sys *System, ms int64, ns int32, interruptShouldThrow bool) error {
	m.mu.Lock()

	if m.owner.Load() != self {
		m.mu.Unlock()
		return &IllegalMonitorStateError{
			Op:     "wait",
			Reason: "object not locked by thread before wait()",
		}
	}

	timed := ms > 0 || ns > 0
	timeout := time.Duration(ms)*time.Millisecond + time.Duration(ns)*time.Nanosecond

	// Join the wait set and publish the waiting state while the monitor is
	// still held, so a notify cannot slip between release and park.
	m.appendToWaitSet(self)
	self.BeginWait(m.obj, timed)

	// A pending interrupt consumes the wait before it parks; the monitor
	// is kept. The check must come after BeginWait, which drains stale
	// wake tokens: an interrupt landing earlier would otherwise have its
	// token discarded and an untimed wait would park forever.
	if self.IsInterrupted() {
		m.removeFromWaitSet(self)
		self.EndWait()
		m.mu.Unlock()
		if interruptShouldThrow {
			self.ConsumeInterrupt()
			return &InterruptedError{ThreadID: self.ID()}
		}
		return nil
	}

	// Release the monitor fully, saving the recursion depth to restore on
	// the way out.
	savedCount := m.lockCount
	savedMethod, savedPC := m.lockingMethod, m.lockingPC
	m.lockCount = 0
	m.owner.Store(nil)
	m.lockingMethod, m.lockingPC = nil, 0
	m.cond.Signal()
	m.mu.Unlock()

	if timed {
		self.Park(timeout)
	} else {
		self.Park(0)
	}

	// Re-acquire the monitor and restore the saved hold. Waking only made
	// us eligible to contend again; ownership never transferred with the
	// notify.
	m.mu.Lock()
	for m.owner.Load() != nil {
		m.cond.Wait()
	}
	m.owner.Store(self)
	m.lockCount = savedCount
	m.lockingMethod, m.lockingPC = savedMethod, savedPC
	m.removeFromWaitSet(self)
	self.EndWait()
	m.mu.Unlock()

	self.WasNotified() // clear a notification consumed by this wake

	if interruptShouldThrow && self.ConsumeInterrupt() {
		return &InterruptedError{ThreadID: self.ID()}
	}
	return nil
}

// notify wakes one thread from the wait set. Implementation-defined
// selection; we pop in arrival order because the slice makes that the
// cheapest choice, but callers cannot observe more than "some waiter
// proceeds".
func (m *Monitor) notify(self *thread.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owner.Load() != self {
		return &IllegalMonitorStateError{
			Op:     "notify",
			Reason: "object not locked by thread before notify()",
		}
	}
	if len(m.waitSet) > 0 {
		t := m.waitSet[0]
		m.waitSet = m.waitSet[1:]
		t.NotifyWake()
	}
	return nil
}

// notifyAll wakes every thread in the wait set.
func (m *Monitor) notifyAll(self *thread.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owner.Load() != self {
		return &IllegalMonitorStateError{
			Op:     "notifyAll",
			Reason: "object not locked by thread before notifyAll()",
		}
	}
	for _, t := range m.waitSet {
		t.NotifyWake()
	}
	m.waitSet = m.waitSet[:0]
	return nil
}

// appendToWaitSet adds self to the wait set. Caller holds mu.
func (m *Monitor) appendToWaitSet(self *thread.Thread) {
	m.waitSet = append(m.waitSet, self)
}

// removeFromWaitSet removes self if still present. Caller holds mu. A
// no-op when a notify already popped the thread, so timeout and notify can
// race without double bookkeeping.
func (m *Monitor) removeFromWaitSet(self *thread.Thread) {
	for i, t := range m.waitSet {
		if t == self {
			m.waitSet = append(m.waitSet[:i], m.waitSet[i+1:]...)
			return
		}
	}
}

// waiters returns the current wait set size. Diagnostics and tests.
func (m *Monitor) waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waitSet)
}

package monitor

import (
	"strconv"

	"github.com/kolkov/vmmonitor/lockword"
	"github.com/kolkov/vmmonitor/object"
	"github.com/kolkov/vmmonitor/thread"
)

// MonitorEnter acquires obj's lock for self, blocking until it is held.
//
// The routing is a CAS retry loop over the header word:
//   - thin and unheld: take it inline, no allocation.
//   - thin and owned by self: bump the inline recursion count, inflating
//     only when the count field overflows.
//   - thin and owned by another thread: inflate, then contend on the fat
//     monitor.
//   - fat: enter through the monitor.
//
// Every failed CAS means another thread moved the word; re-read and
// re-dispatch.
func (s *System) MonitorEnter(self *thread.Thread, obj *object.Object) {
	for {
		w := obj.LockWord()
		if w.Shape() == lockword.ShapeFat {
			mon := s.monitors.Get(w.MonitorID())
			if mon == nil {
				// Stale word read against a concurrent sweep of an object
				// that was later resurrected is impossible under VM
				// invariants; a nil here means we raced a word rewrite.
				continue
			}
			mon.lock(self, s)
			return
		}

		switch owner := w.ThinOwner(); {
		case owner == 0:
			next := lockword.EncodeThin(self.ID(), 0, w.HashState())
			if obj.CompareAndSwapLockWord(w, next) {
				return
			}
		case owner == self.ID():
			if count := w.ThinCount(); count < lockword.MaxThinCount {
				next := lockword.EncodeThin(owner, count+1, w.HashState())
				if obj.CompareAndSwapLockWord(w, next) {
					return
				}
			} else {
				// Inline count exhausted. Inflate (we own the lock, so the
				// transfer is race-free) and let the fat path take the
				// extra recursion.
				s.inflate(obj, w)
			}
		default:
			// Contention. Inflate on behalf of the current owner, then
			// loop: the fat path blocks until ownership transfers.
			s.inflate(obj, w)
		}
	}
}

// MonitorExit releases one level of self's hold on obj. Returns whether the
// lock is now fully released. An exit by a non-owner signals an
// IllegalMonitorStateError and mutates nothing.
//
// A thin exit is handled entirely by the codec fast path; a Monitor is
// neither allocated nor located unless the word is already fat.
func (s *System) MonitorExit(self *thread.Thread, obj *object.Object) (bool, error) {
	for {
		w := obj.LockWord()
		if w.Shape() == lockword.ShapeFat {
			mon := s.monitors.Get(w.MonitorID())
			if mon == nil {
				continue
			}
			return mon.unlock(self)
		}

		owner := w.ThinOwner()
		if owner != self.ID() {
			return false, failedUnlockThin(s.threads, obj, self, owner)
		}
		if count := w.ThinCount(); count > 0 {
			next := lockword.EncodeThin(owner, count-1, w.HashState())
			if obj.CompareAndSwapLockWord(w, next) {
				return false, nil
			}
		} else {
			if obj.CompareAndSwapLockWord(w, lockword.Unlocked(w.HashState())) {
				return true, nil
			}
		}
	}
}

// Wait suspends self on obj's monitor until notified, timed out or
// interrupted. The caller must hold obj's lock. ms and ns form the timeout;
// both zero means wait indefinitely. interruptShouldThrow selects whether
// an interruption surfaces as an InterruptedError or is merely recorded.
//
// A thin lock can never have a wait set, so waiting on one first forces
// inflation.
func (s *System) Wait(self *thread.Thread, obj *object.Object, ms int64, ns int32, interruptShouldThrow bool) error {
	if ms < 0 || ns < 0 || ns > 999999 {
		return &IllegalArgumentError{
			Reason: "timeout arguments out of range: ms=" + strconv.FormatInt(ms, 10) +
				" ns=" + strconv.FormatInt(int64(ns), 10),
		}
	}

	for {
		w := obj.LockWord()
		if w.Shape() == lockword.ShapeFat {
			mon := s.monitors.Get(w.MonitorID())
			if mon == nil {
				continue
			}
			return mon.wait(self, s, ms, ns, interruptShouldThrow)
		}

		if w.ThinOwner() != self.ID() {
			return &IllegalMonitorStateError{
				Op:     "wait",
				Reason: "object not locked by thread before wait()",
			}
		}
		// Self-owned thin lock: inflate, then wait through the monitor.
		s.inflate(obj, w)
	}
}

// Notify wakes one thread waiting on obj's monitor. The caller must hold
// obj's lock. On a thin lock the wait set is necessarily empty, so a
// self-owned thin notify succeeds as a no-op.
func (s *System) Notify(self *thread.Thread, obj *object.Object) error {
	return s.notifyDispatch(self, obj, false)
}

// NotifyAll wakes every thread waiting on obj's monitor. Same holding
// requirement as Notify.
func (s *System) NotifyAll(self *thread.Thread, obj *object.Object) error {
	return s.notifyDispatch(self, obj, true)
}

func (s *System) notifyDispatch(self *thread.Thread, obj *object.Object, all bool) error {
	for {
		w := obj.LockWord()
		if w.Shape() == lockword.ShapeFat {
			mon := s.monitors.Get(w.MonitorID())
			if mon == nil {
				continue
			}
			if all {
				return mon.notifyAll(self)
			}
			return mon.notify(self)
		}

		if w.ThinOwner() != self.ID() {
			op := "notify"
			if all {
				op = "notifyAll"
			}
			return &IllegalMonitorStateError{
				Op:     op,
				Reason: "object not locked by thread before " + op + "()",
			}
		}
		// Thin and self-owned: no wait set can exist, nothing to wake.
		return nil
	}
}

// inflate promotes obj's thin lock to a fat monitor, transferring the
// observed owner and recursion depth. The monitor is registered with the
// list before the fat word is CAS-published, so there is no window where
// the lock word references an unknown handle or ownership appears lost:
// the thin word keeps encoding the owner until the fat word, whose monitor
// already records the same owner, replaces it atomically.
//
// Returns whether this call performed the promotion. On a lost CAS the
// speculative monitor is deregistered and the caller re-reads the word.
// The transition is one-way: nothing ever deflates a fat word.
func (s *System) inflate(obj *object.Object, observed lockword.Word) bool {
	mon := newMonitor(obj)

	if ownerID := observed.ThinOwner(); ownerID != 0 {
		// Thin count stores re-entries beyond the first hold; the fat
		// lockCount counts all holds.
		owner := s.threads.Lookup(ownerID)
		mon.seedOwner(owner, observed.ThinCount()+1)
	}

	id := s.monitors.add(mon)
	fat := lockword.EncodeFat(id, observed.HashState())
	if obj.CompareAndSwapLockWord(observed, fat) {
		return true
	}

	// Lost the race: the word moved (owner released, recursed, or another
	// thread inflated first). Discard the speculative monitor; its handle
	// was never published.
	s.monitors.remove(id)
	return false
}

package monitor

import (
	"fmt"
	"io"

	"github.com/kolkov/vmmonitor/callsite"
	"github.com/kolkov/vmmonitor/lockword"
	"github.com/kolkov/vmmonitor/object"
	"github.com/kolkov/vmmonitor/thread"
)

// DescribeWait writes the wait/contention line for a thread-state dump:
// which object t is waiting on, or trying to lock, and who probably holds
// it. All reads here are the racy diagnostic kind; the dump describes a
// moment that may already have passed.
func (s *System) DescribeWait(w io.Writer, t *thread.Thread) {
	state := t.State()
	obj := t.PendingObject()
	if obj == nil {
		return
	}

	switch state {
	case thread.Waiting, thread.TimedWaiting:
		fmt.Fprintf(w, "  - waiting on <0x%08x> (a %s)\n", obj.ID(), obj.Class())
	case thread.Blocked:
		fmt.Fprintf(w, "  - waiting to lock <0x%08x> (a %s)", obj.ID(), obj.Class())
		if holder := s.probableHolder(obj); holder != 0 {
			fmt.Fprintf(w, " held by thread %d", holder)
		}
		fmt.Fprintf(w, "\n")
	}
}

// probableHolder returns the id of the thread that probably holds obj's
// lock: the racy thin owner read, or the fat monitor's unsynchronized
// owner snapshot. 0 when nothing appears to hold it.
func (s *System) probableHolder(obj *object.Object) uint16 {
	w := obj.LockWord()
	if w.Shape() == lockword.ShapeThin {
		return lockword.GetThinLockId(w)
	}
	mon := s.monitors.Get(w.MonitorID())
	if mon == nil {
		return 0
	}
	if owner := mon.Owner(); owner != nil {
		return owner.ID()
	}
	return 0
}

// DescribeLocks writes the "- locked" lines for one stack frame of a
// thread dump: every monitor the visited thread owns whose recorded
// acquisition site matches the frame the visitor is positioned on, with
// the site translated to source file and line.
func (s *System) DescribeLocks(w io.Writer, sv callsite.StackVisitor) {
	frameMethod := sv.CurrentMethod()
	if frameMethod == nil {
		return
	}

	for _, mon := range s.monitors.snapshot() {
		owner := mon.Owner()
		if owner == nil || owner.ID() != sv.ThreadID() {
			continue
		}
		method, pc := mon.lockingSite()
		if method != frameMethod {
			continue
		}
		loc := callsite.TranslateLocation(method, pc)
		fmt.Fprintf(w, "  - locked <0x%08x> (a %s) at %s:%d\n",
			mon.obj.ID(), mon.obj.Class(), loc.File, loc.Line)
	}
}

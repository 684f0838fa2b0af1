package monitor

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kolkov/vmmonitor/callsite"
	"github.com/kolkov/vmmonitor/thread"
)

// ContentionEvent is one sampled record of a contended monitor enter: who
// waited, for how long, on which object, and where the then-owner had
// acquired the lock.
type ContentionEvent struct {
	// ObjectID and ObjectClass identify the contended object.
	ObjectID    uint32
	ObjectClass string

	// WaiterID is the thread that suffered the wait.
	WaiterID uint16

	// WaitMillis is the measured blocking time, in milliseconds.
	WaitMillis int64

	// SamplePercent is the sampling rate this event passed, so consumers
	// can scale counts back up.
	SamplePercent uint32

	// OwnerMethod names the method in which the owner acquired the lock;
	// "<no method>" when no managed frame was on the owner's stack.
	OwnerMethod string

	// OwnerLocation is the owner's acquisition site translated to a source
	// file and line.
	OwnerLocation callsite.Location
}

// Format writes the event to w in the structured single-record layout used
// by the subsystem's diagnostic sinks.
func (e *ContentionEvent) Format(w io.Writer) {
	fmt.Fprintf(w, "---\n")
	fmt.Fprintf(w, "LOCK CONTENTION\n")
	fmt.Fprintf(w, "Object: 0x%08x (a %s)\n", e.ObjectID, e.ObjectClass)
	fmt.Fprintf(w, "Waiter: thread %d blocked %dms (sampled at %d%%)\n",
		e.WaiterID, e.WaitMillis, e.SamplePercent)
	fmt.Fprintf(w, "Owner acquired at: %s (%s:%d)\n",
		e.OwnerMethod, e.OwnerLocation.File, e.OwnerLocation.Line)
	fmt.Fprintf(w, "---\n")
}

// String returns the formatted record, for tests and debugging.
func (e *ContentionEvent) String() string {
	var buf strings.Builder
	e.Format(&buf)
	return buf.String()
}

// logContention turns a measured contended-enter wait into a sampled
// contention event.
//
// The startup threshold sets the sampling scale: a wait at or beyond the
// threshold is always logged, a shorter wait is sampled at
// 100*wait/threshold percent, so rare long stalls always surface while
// light contention is decimated. Selection uses an atomic trace-position
// counter rather than an RNG: concurrent callers naturally interleave
// positions, and the result is deterministic within a single-threaded run.
//
// The sensitive-thread hook suppresses profiling entirely, so the profiler
// never profiles itself.
func (s *System) logContention(self *thread.Thread, mon *Monitor, waited time.Duration, ownerMethod *callsite.Method, ownerPC uint32) {
	threshold := s.opts.LockProfilingThresholdMs
	if threshold == 0 {
		return
	}
	waitMs := waited.Milliseconds()
	if waitMs <= 0 {
		return
	}
	if s.IsSensitiveThread() {
		return
	}

	samplePercent := uint32(100)
	if ratio := uint64(waitMs) * 100 / uint64(threshold); ratio < 100 {
		samplePercent = uint32(ratio)
	}
	pos := s.samplePos.Add(1)
	if uint32(pos%100) >= samplePercent {
		return
	}

	loc := callsite.TranslateLocation(ownerMethod, ownerPC)
	event := &ContentionEvent{
		ObjectID:      mon.obj.ID(),
		ObjectClass:   mon.obj.Class(),
		WaiterID:      self.ID(),
		WaitMillis:    waitMs,
		SamplePercent: samplePercent,
		OwnerMethod:   ownerMethod.FullName(),
		OwnerLocation: loc,
	}
	event.Format(s.opts.ContentionSink)
}

package monitor

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/kolkov/vmmonitor/lockword"
	"github.com/kolkov/vmmonitor/thread"
)

// Options is the one-time, process-wide configuration of the monitor
// subsystem, captured at startup and immutable afterwards. The zero value
// is usable: profiling disabled, no sensitive threads, events to stderr.
type Options struct {
	// LockProfilingThresholdMs is the contended-enter wait time, in
	// milliseconds, above which contention events become eligible for
	// sampling. 0 disables contention logging entirely.
	LockProfilingThresholdMs uint32

	// IsSensitiveThread reports whether the calling thread must never be
	// profiled (e.g. the profiler's own threads). nil means no thread is
	// sensitive.
	IsSensitiveThread func() bool

	// ContentionSink receives formatted contention events. nil means
	// os.Stderr.
	ContentionSink io.Writer

	// Threads is the process thread registry. nil allocates a fresh one,
	// which suits tests; a real runtime passes the registry its thread
	// list already uses.
	Threads *thread.Registry
}

// System is the top-level handle of the monitor subsystem. It owns the
// monitor registry and the configuration; every inbound operation from the
// execution engine is a method on it.
type System struct {
	opts     Options
	threads  *thread.Registry
	monitors *MonitorList

	// samplePos is the contention sampler's trace position: an atomic
	// counter used for percentage selection without an RNG.
	samplePos atomic.Uint64
}

// NewSystem constructs the subsystem from its startup configuration.
// Called once, before any monitor operation.
func NewSystem(opts Options) *System {
	if opts.ContentionSink == nil {
		opts.ContentionSink = os.Stderr
	}
	if opts.Threads == nil {
		opts.Threads = thread.NewRegistry()
	}
	return &System{
		opts:     opts,
		threads:  opts.Threads,
		monitors: NewMonitorList(),
	}
}

// Threads returns the thread registry the subsystem resolves ids against.
func (s *System) Threads() *thread.Registry {
	return s.threads
}

// Monitors returns the process-wide monitor registry.
func (s *System) Monitors() *MonitorList {
	return s.monitors
}

// IsSensitiveThread reports whether the calling thread is exempt from
// profiling, per the startup hook.
func (s *System) IsSensitiveThread() bool {
	return s.opts.IsSensitiveThread != nil && s.opts.IsSensitiveThread()
}

// GetThinLockId exposes the racy lock word owner read at the subsystem
// boundary. See lockword.GetThinLockId for the (lack of) guarantees.
func (s *System) GetThinLockId(raw lockword.Word) uint16 {
	return lockword.GetThinLockId(raw)
}

// SweepMonitorList forwards the collector's sweep to the registry.
func (s *System) SweepMonitorList(isMarked IsMarkedTester, arg any) {
	s.monitors.SweepMonitorList(isMarked, arg)
}

package monitor

import (
	"sync"

	"github.com/kolkov/vmmonitor/lockword"
	"github.com/kolkov/vmmonitor/object"
)

// IsMarkedTester is the garbage collector's reachability callback, invoked
// per monitor during sweep. arg is passed through opaquely from the sweep
// call, the way the collector threads its own state.
type IsMarkedTester func(obj *object.Object, arg any) bool

// MonitorList is the process-wide registry of every live Monitor. It is the
// sole owner of monitor lifetime: inflation registers a monitor here before
// the fat lock word is published, and the GC-driven sweep is the only path
// that removes one.
//
// The list's lock is distinct from any individual monitor's lock and is
// never held while a monitor's internal lock is taken. Registration happens
// before the new monitor is reachable by other threads, so the ordering
// rule "a monitor's own lock is acquired after, never before, the list
// lock" holds trivially and inversion during registration is impossible.
type MonitorList struct {
	mu       sync.Mutex
	nextID   uint32
	monitors map[uint32]*Monitor
}

// NewMonitorList creates an empty registry.
func NewMonitorList() *MonitorList {
	return &MonitorList{
		nextID:   1, // handle 0 would collide with an unlocked thin word
		monitors: make(map[uint32]*Monitor),
	}
}

// add registers a monitor and assigns its handle. Only the inflation path
// calls this, with a monitor no other thread can see yet.
func (l *MonitorList) add(m *Monitor) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	if l.nextID > lockword.MaxMonitorID {
		l.nextID = 1
	}
	// Handle reuse after wraparound: skip ids still live. With 29 bits of
	// handle space this loop runs once in practice.
	for {
		if _, taken := l.monitors[id]; !taken {
			break
		}
		id = l.nextID
		l.nextID++
		if l.nextID > lockword.MaxMonitorID {
			l.nextID = 1
		}
	}

	m.id = id
	l.monitors[id] = m
	return id
}

// remove discards a registered monitor that lost the inflation CAS race
// before its handle was ever published.
func (l *MonitorList) remove(id uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.monitors, id)
}

// Get resolves a fat lock word handle to its monitor. Returns nil for a
// handle the sweep has already invalidated.
func (l *MonitorList) Get(id uint32) *Monitor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.monitors[id]
}

// Size returns the number of registered monitors.
func (l *MonitorList) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.monitors)
}

// snapshot copies the current monitors for lock dumps, so DescribeLocks can
// iterate without holding the list lock across formatting.
func (l *MonitorList) snapshot() []*Monitor {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Monitor, 0, len(l.monitors))
	for _, m := range l.monitors {
		out = append(out, m)
	}
	return out
}

// SweepMonitorList asks the marked tester about every registered monitor's
// backing object and detaches the monitors of unreachable ones. The caller
// is the collector's sweep phase, already holding whatever exclusion heap
// tracing requires; an unreachable object cannot have a live owning thread
// or waiters, so the detached monitors carry no owner and an empty wait
// set.
func (l *MonitorList) SweepMonitorList(isMarked IsMarkedTester, arg any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, m := range l.monitors {
		if !isMarked(m.obj, arg) {
			delete(l.monitors, id)
		}
	}
}

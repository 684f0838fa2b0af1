package thread

import (
	"testing"
	"time"

	"github.com/kolkov/vmmonitor/callsite"
	"github.com/kolkov/vmmonitor/object"
)

func newTestThread(t *testing.T, name string) *Thread {
	t.Helper()
	th, err := NewRegistry().Attach(name)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return th
}

// TestRegistry_Attach verifies id allocation skips 0 and stays unique.
func TestRegistry_Attach(t *testing.T) {
	r := NewRegistry()
	seen := make(map[uint16]bool)
	for i := 0; i < 100; i++ {
		th, err := r.Attach("worker")
		if err != nil {
			t.Fatalf("Attach: %v", err)
		}
		if th.ID() == 0 {
			t.Fatal("allocated reserved id 0")
		}
		if seen[th.ID()] {
			t.Fatalf("id %d allocated twice", th.ID())
		}
		seen[th.ID()] = true
	}
	if r.Size() != 100 {
		t.Errorf("Size() = %d, want 100", r.Size())
	}
}

// TestRegistry_DetachRecycles verifies detached ids are reused.
func TestRegistry_DetachRecycles(t *testing.T) {
	r := NewRegistry()
	th, err := r.Attach("short-lived")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	id := th.ID()
	r.Detach(th)

	if r.Lookup(id) != nil {
		t.Error("Lookup found detached thread")
	}

	th2, err := r.Attach("replacement")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if th2.ID() != id {
		t.Errorf("recycled id = %d, want %d", th2.ID(), id)
	}
}

// TestRegistry_Lookup verifies id resolution.
func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	th, _ := r.Attach("a")
	if got := r.Lookup(th.ID()); got != th {
		t.Errorf("Lookup(%d) = %v, want %v", th.ID(), got, th)
	}
	if got := r.Lookup(9999); got != nil {
		t.Errorf("Lookup(9999) = %v, want nil", got)
	}
}

// TestPark_WakeBeforePark verifies a wake delivered before parking is not
// lost. This is the token property the wait protocol depends on.
func TestPark_WakeBeforePark(t *testing.T) {
	th := newTestThread(t, "waiter")
	th.NotifyWake()

	done := make(chan struct{})
	go func() {
		th.Park(0) // indefinite; must return because of the pending token
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Park did not consume the pre-posted wake token")
	}
	if !th.WasNotified() {
		t.Error("notified flag not set")
	}
}

// TestPark_Timeout verifies a timed park returns on its own.
func TestPark_Timeout(t *testing.T) {
	th := newTestThread(t, "waiter")
	start := time.Now()
	th.Park(50 * time.Millisecond)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Park returned after %v, want ~50ms", elapsed)
	}
}

// TestPark_InterruptWakes verifies Interrupt unblocks an indefinite park.
func TestPark_InterruptWakes(t *testing.T) {
	th := newTestThread(t, "waiter")

	done := make(chan struct{})
	go func() {
		th.Park(0)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	th.Interrupt()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Interrupt did not wake parked thread")
	}
	if !th.IsInterrupted() {
		t.Error("interrupt flag not set")
	}
	if !th.ConsumeInterrupt() {
		t.Error("ConsumeInterrupt returned false for set flag")
	}
	if th.IsInterrupted() {
		t.Error("interrupt flag survived ConsumeInterrupt")
	}
}

// TestBeginWait_DrainsStaleToken verifies a leftover token from a previous
// wait cannot cause a premature wake in the next one.
func TestBeginWait_DrainsStaleToken(t *testing.T) {
	th := newTestThread(t, "waiter")
	obj := object.New("A")

	th.NotifyWake() // stale token, never consumed
	th.BeginWait(obj, true)

	start := time.Now()
	th.Park(50 * time.Millisecond)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Park woke after %v; stale token leaked through BeginWait", elapsed)
	}
	th.EndWait()
}

// TestStateBookkeeping verifies the dump-facing state transitions.
func TestStateBookkeeping(t *testing.T) {
	th := newTestThread(t, "waiter")
	obj := object.New("A")

	if th.State() != Runnable {
		t.Errorf("initial state = %v, want RUNNABLE", th.State())
	}

	th.BeginWait(obj, false)
	if th.State() != Waiting || th.PendingObject() != obj {
		t.Errorf("after BeginWait: state=%v pending=%v", th.State(), th.PendingObject())
	}
	th.EndWait()

	th.BeginWait(obj, true)
	if th.State() != TimedWaiting {
		t.Errorf("after timed BeginWait: state=%v", th.State())
	}
	th.EndWait()

	th.BeginContended(obj)
	if th.State() != Blocked || th.PendingObject() != obj {
		t.Errorf("after BeginContended: state=%v pending=%v", th.State(), th.PendingObject())
	}
	th.EndContended()

	if th.State() != Runnable || th.PendingObject() != nil {
		t.Errorf("after EndContended: state=%v pending=%v", th.State(), th.PendingObject())
	}
}

// TestCurrentFrame verifies frame bookkeeping round-trips.
func TestCurrentFrame(t *testing.T) {
	th := newTestThread(t, "mutator")
	m := &callsite.Method{Class: "A", Name: "run"}

	th.SetCurrentFrame(m, 17)
	got, pc := th.CurrentFrame()
	if got != m || pc != 17 {
		t.Errorf("CurrentFrame() = (%v, %d), want (%v, 17)", got, pc, m)
	}

	th.SetCurrentFrame(nil, 0)
	if got, _ := th.CurrentFrame(); got != nil {
		t.Errorf("CurrentFrame() method = %v, want nil", got)
	}
}

// TestStateString covers dump spellings.
func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Runnable, "RUNNABLE"},
		{Blocked, "BLOCKED"},
		{Waiting, "WAITING"},
		{TimedWaiting, "TIMED_WAITING"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

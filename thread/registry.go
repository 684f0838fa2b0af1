package thread

import (
	"fmt"
	"sync"
)

// Registry allocates thread identities and resolves ids back to threads.
//
// Ids are 16-bit because they must fit the thin lock word's owner field.
// Id 0 is never allocated: the lock word uses it to mean "unheld". Detached
// ids return to a free list and are reused, so a long-lived process does
// not exhaust the space as threads come and go.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	next    uint16
	free    []uint16
	threads map[uint16]*Thread
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		next:    1,
		threads: make(map[uint16]*Thread),
	}
}

// Attach creates a thread with a fresh id and registers it. Returns an
// error when all 65535 ids are live, which indicates a runaway caller
// rather than a recoverable condition.
func (r *Registry) Attach(name string) (*Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id uint16
	switch {
	case len(r.free) > 0:
		id = r.free[len(r.free)-1]
		r.free = r.free[:len(r.free)-1]
	case r.next != 0:
		id = r.next
		r.next++ // wraps to 0 when the space is exhausted
	default:
		return nil, fmt.Errorf("thread: all %d thread ids in use", 1<<16-1)
	}

	t := &Thread{
		id:   id,
		name: name,
		wake: make(chan struct{}, 1),
	}
	r.threads[id] = t
	return t, nil
}

// Detach removes a thread and recycles its id. The caller must guarantee
// the thread holds no monitors and sits in no wait set.
func (r *Registry) Detach(t *Thread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.threads[t.id]; !ok {
		return
	}
	delete(r.threads, t.id)
	r.free = append(r.free, t.id)
}

// Lookup resolves an id to its thread, nil if no live thread has it. Used
// by inflation (to transfer a thin owner into a monitor) and by failed
// unlock diagnostics.
func (r *Registry) Lookup(id uint16) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[id]
}

// Size returns the number of live threads.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}

// Package object provides the minimal heap-object collaborator the monitor
// subsystem needs: a header word with atomic accessors and the identity-hash
// state machine that shares bits with the lock word.
//
// Object layout, allocation and tracing belong to the surrounding runtime;
// the monitor code only ever touches the header word and the identity fields
// used for logging.
package object

import (
	"sync/atomic"

	"github.com/kolkov/vmmonitor/lockword"
)

// Object is a heap object as seen by the locking subsystem.
//
// The header word is mutated only through CompareAndSwapLockWord so that
// concurrent, unsynchronized first access on the thin-lock fast path cannot
// tear or lose an update. The id and class are immutable and used only for
// diagnostics and identity hashing.
type Object struct {
	id    uint32
	class string

	// header is the raw lock word. All interpretation of its bits goes
	// through the lockword package.
	header atomic.Uint32
}

// nextID allocates object identities. Monotonic, never reused.
var nextID atomic.Uint32

// New allocates an object of the given class name with an unlocked,
// unhashed header word.
func New(class string) *Object {
	return &Object{
		id:    nextID.Add(1),
		class: class,
	}
}

// ID returns the object's stable identity, used in dumps and events.
func (o *Object) ID() uint32 {
	return o.id
}

// Class returns the object's class name, used only for logging.
func (o *Object) Class() string {
	return o.class
}

// LockWord atomically loads the current header word.
//
//go:nosplit
func (o *Object) LockWord() lockword.Word {
	return lockword.Word(o.header.Load())
}

// CompareAndSwapLockWord publishes a new header word if the current one
// still matches old. Every lock-word transition in the subsystem goes
// through this single CAS.
//
//go:nosplit
func (o *Object) CompareAndSwapLockWord(old, new lockword.Word) bool {
	return o.header.CompareAndSwap(uint32(old), uint32(new))
}

// IdentityHashCode returns the object's identity hash, exposing it on first
// use by flipping the header's hash state from unhashed to hashed.
//
// The transition races with lock-word updates from enter/exit, so it loops
// on the CAS: the hash bits are rewritten onto whatever word is current.
// A word already in hashed or hashed-and-moved state is left untouched.
func (o *Object) IdentityHashCode() uint32 {
	for {
		w := o.LockWord()
		switch w.HashState() {
		case lockword.HashStateHashed, lockword.HashStateHashedAndMoved:
			return mix(o.id)
		}
		if o.CompareAndSwapLockWord(w, w.WithHashState(lockword.HashStateHashed)) {
			return mix(o.id)
		}
	}
}

// mix scrambles the sequential object id into a hash value so identity
// hashes do not correlate with allocation order. Finalizer of a 32-bit
// murmur-style mix.
func mix(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return x
}

// Package lockword implements the 32-bit lock word stored in every heap
// object's header.
//
// The word is a tagged union over two shapes:
//   - Thin: [count:13][owner:16][hash:2][shape:1], uncontended locking with
//     no heap allocation. owner is the 16-bit thread id (0 means unheld),
//     count is the owner's recursion depth above the first acquisition.
//   - Fat:  [monitor:29][hash:2][shape:1], where the payload is a non-owning
//     handle into the process-wide monitor registry.
//
// The interpretation of bits above the hash-state field depends entirely on
// the shape bit; a word is never read as both shapes at once. All bit
// arithmetic for the header word lives in this package so that the
// race-prone raw-word reads and writes stay in a single audited module.
package lockword

// Word is the raw 32-bit header word of a heap object.
//
// Example: 0x00080028 decodes as shape=thin, hash=unhashed, owner=5,
// count=1 (one recursive re-entry on top of the initial acquisition).
type Word uint32

// Shape distinguishes the two lock representations.
type Shape uint32

const (
	// ShapeThin marks a word carrying an inline owner id and recursion count.
	ShapeThin Shape = 0

	// ShapeFat marks a word carrying a monitor registry handle.
	ShapeFat Shape = 1

	shapeMask = 0x1
)

// HashState tracks whether the object's identity hash has been exposed.
type HashState uint32

const (
	// HashStateUnhashed means the identity hash was never computed.
	HashStateUnhashed HashState = 0

	// HashStateHashed means the identity hash has been exposed.
	HashStateHashed HashState = 1

	// HashStateHashedAndMoved means the hash was exposed and the object has
	// since been relocated by the collector.
	HashStateHashedAndMoved HashState = 3

	// Value 2 is reserved. The codec decodes it faithfully and never
	// produces it.

	hashStateShift = 1
	hashStateMask  = 0x3
)

const (
	// OwnerBits is the width of the thin-lock owner field (65535 threads max;
	// id 0 is reserved to mean unheld).
	OwnerBits = 16

	// CountBits is the width of the thin-lock recursion count field. The
	// count stores re-entries beyond the first acquisition, so a thin lock
	// supports MaxThinCount+1 nested holds before inflation is forced.
	CountBits = 13

	ownerShift = 3
	ownerMask  = (1 << OwnerBits) - 1

	countShift = ownerShift + OwnerBits
	countMask  = (1 << CountBits) - 1

	monitorShift = 3
	monitorMask  = (1 << 29) - 1

	// MaxThinCount is the largest recursion count a thin word can encode.
	// One more nested enter inflates the lock.
	MaxThinCount = countMask

	// MaxMonitorID is the largest registry handle a fat word can encode.
	MaxMonitorID = monitorMask
)

// Shape returns the shape bit of the word.
//
//go:nosplit
func (w Word) Shape() Shape {
	return Shape(w & shapeMask)
}

// HashState returns the hash-state field of the word. Valid for both shapes.
//
//go:nosplit
func (w Word) HashState() HashState {
	return HashState((w >> hashStateShift) & hashStateMask)
}

// ThinOwner returns the owning thread id of a thin word, 0 if unheld.
// Meaningful only when Shape() == ShapeThin; for a fat word the returned
// value is unspecified (undefined field values are tolerated, never a crash).
//
//go:nosplit
func (w Word) ThinOwner() uint16 {
	return uint16((w >> ownerShift) & ownerMask)
}

// ThinCount returns the recursion count of a thin word: the number of
// nested re-entries beyond the first acquisition.
//
//go:nosplit
func (w Word) ThinCount() uint32 {
	return uint32(w>>countShift) & countMask
}

// MonitorID returns the registry handle of a fat word. Meaningful only when
// Shape() == ShapeFat.
//
//go:nosplit
func (w Word) MonitorID() uint32 {
	return uint32(w>>monitorShift) & monitorMask
}

// IsUnlocked reports whether the word is a thin word with no owner.
//
//go:nosplit
func (w Word) IsUnlocked() bool {
	return w.Shape() == ShapeThin && w.ThinOwner() == 0
}

// EncodeThin builds a thin word for the given owner, recursion count and
// hash state. count values beyond MaxThinCount are truncated; callers must
// inflate before reaching that point.
//
//go:nosplit
func EncodeThin(owner uint16, count uint32, hash HashState) Word {
	return Word(uint32(ShapeThin) |
		(uint32(hash)&hashStateMask)<<hashStateShift |
		uint32(owner)<<ownerShift |
		(count&countMask)<<countShift)
}

// EncodeFat builds a fat word referencing the monitor registry handle id.
//
//go:nosplit
func EncodeFat(id uint32, hash HashState) Word {
	return Word(uint32(ShapeFat) |
		(uint32(hash)&hashStateMask)<<hashStateShift |
		(id&monitorMask)<<monitorShift)
}

// Unlocked builds a thin word with no owner, preserving only the hash state.
//
//go:nosplit
func Unlocked(hash HashState) Word {
	return EncodeThin(0, 0, hash)
}

// WithHashState returns a copy of the word with the hash-state field
// replaced, leaving every other bit intact.
//
//go:nosplit
func (w Word) WithHashState(hash HashState) Word {
	return (w &^ (hashStateMask << hashStateShift)) |
		Word(uint32(hash)&hashStateMask)<<hashStateShift
}

// GetThinLockId reads the owner field of a raw lock word WITHOUT any
// synchronization.
//
// This is explicitly a best-effort, racy read for diagnostics ("who probably
// owns this"): the returned id may be stale by the time the caller looks at
// it, and for a fat word it is garbage. It must never feed a correctness
// decision; the authoritative owner lives behind the monitor's internal lock.
//
//go:nosplit
func GetThinLockId(raw Word) uint16 {
	return raw.ThinOwner()
}

// String returns a human-readable rendering of the word, for debugging and
// dump output only.
func (w Word) String() string {
	if w.Shape() == ShapeFat {
		return "fat{monitor=" + itoa(w.MonitorID()) + " hash=" + itoa(uint32(w.HashState())) + "}"
	}
	return "thin{owner=" + itoa(uint32(w.ThinOwner())) +
		" count=" + itoa(w.ThinCount()) +
		" hash=" + itoa(uint32(w.HashState())) + "}"
}

// itoa converts an integer to string without an fmt import, keeping this
// package dependency-free for use from header-word fast paths.
func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	tmp := n
	digits := 0
	for tmp > 0 {
		digits++
		tmp /= 10
	}

	buf := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	return string(buf)
}

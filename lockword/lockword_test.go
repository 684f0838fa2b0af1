package lockword

import "testing"

// TestEncodeThin tests thin word encoding against known bit patterns.
func TestEncodeThin(t *testing.T) {
	tests := []struct {
		name     string
		owner    uint16
		count    uint32
		hash     HashState
		wantWord uint32
	}{
		{
			name:     "unheld unhashed",
			owner:    0,
			count:    0,
			hash:     HashStateUnhashed,
			wantWord: 0x00000000,
		},
		{
			name:     "owner only",
			owner:    5,
			count:    0,
			hash:     HashStateUnhashed,
			wantWord: 5 << 3,
		},
		{
			name:     "owner and count",
			owner:    5,
			count:    1,
			hash:     HashStateUnhashed,
			wantWord: 1<<19 | 5<<3,
		},
		{
			name:     "hashed unheld",
			owner:    0,
			count:    0,
			hash:     HashStateHashed,
			wantWord: 1 << 1,
		},
		{
			name:     "hashed and moved, held",
			owner:    42,
			count:    7,
			hash:     HashStateHashedAndMoved,
			wantWord: 7<<19 | 42<<3 | 3<<1,
		},
		{
			name:     "max owner (65535)",
			owner:    65535,
			count:    0,
			hash:     HashStateUnhashed,
			wantWord: 0xFFFF << 3,
		},
		{
			name:     "max count (8191)",
			owner:    1,
			count:    MaxThinCount,
			hash:     HashStateUnhashed,
			wantWord: uint32(MaxThinCount)<<19 | 1<<3,
		},
		{
			name:     "count overflow truncates",
			owner:    1,
			count:    MaxThinCount + 1,
			hash:     HashStateUnhashed,
			wantWord: 1 << 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeThin(tt.owner, tt.count, tt.hash)
			if uint32(got) != tt.wantWord {
				t.Errorf("EncodeThin(%d, %d, %d) = 0x%08X, want 0x%08X",
					tt.owner, tt.count, tt.hash, uint32(got), tt.wantWord)
			}
			if got.Shape() != ShapeThin {
				t.Errorf("Shape() = %d, want ShapeThin", got.Shape())
			}
		})
	}
}

// TestThinDecode tests round-trip decoding of thin words.
func TestThinDecode(t *testing.T) {
	tests := []struct {
		name  string
		owner uint16
		count uint32
		hash  HashState
	}{
		{name: "unheld", owner: 0, count: 0, hash: HashStateUnhashed},
		{name: "held once", owner: 7, count: 0, hash: HashStateUnhashed},
		{name: "recursive", owner: 7, count: 3, hash: HashStateHashed},
		{name: "max fields", owner: 65535, count: MaxThinCount, hash: HashStateHashedAndMoved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := EncodeThin(tt.owner, tt.count, tt.hash)
			if got := w.ThinOwner(); got != tt.owner {
				t.Errorf("ThinOwner() = %d, want %d", got, tt.owner)
			}
			if got := w.ThinCount(); got != tt.count {
				t.Errorf("ThinCount() = %d, want %d", got, tt.count)
			}
			if got := w.HashState(); got != tt.hash {
				t.Errorf("HashState() = %d, want %d", got, tt.hash)
			}
		})
	}
}

// TestEncodeFat tests fat word encoding and decoding.
func TestEncodeFat(t *testing.T) {
	tests := []struct {
		name string
		id   uint32
		hash HashState
	}{
		{name: "handle 1", id: 1, hash: HashStateUnhashed},
		{name: "handle with hash", id: 12345, hash: HashStateHashed},
		{name: "max handle", id: MaxMonitorID, hash: HashStateUnhashed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := EncodeFat(tt.id, tt.hash)
			if w.Shape() != ShapeFat {
				t.Fatalf("Shape() = %d, want ShapeFat", w.Shape())
			}
			if got := w.MonitorID(); got != tt.id {
				t.Errorf("MonitorID() = %d, want %d", got, tt.id)
			}
			if got := w.HashState(); got != tt.hash {
				t.Errorf("HashState() = %d, want %d", got, tt.hash)
			}
		})
	}
}

// TestIsUnlocked verifies the unheld predicate across shapes.
func TestIsUnlocked(t *testing.T) {
	if !Unlocked(HashStateUnhashed).IsUnlocked() {
		t.Error("Unlocked word not reported as unlocked")
	}
	if !Unlocked(HashStateHashed).IsUnlocked() {
		t.Error("hash state should not affect IsUnlocked")
	}
	if EncodeThin(3, 0, HashStateUnhashed).IsUnlocked() {
		t.Error("held thin word reported as unlocked")
	}
	if EncodeFat(1, HashStateUnhashed).IsUnlocked() {
		t.Error("fat word reported as unlocked")
	}
}

// TestWithHashState verifies hash-state replacement preserves other fields.
func TestWithHashState(t *testing.T) {
	w := EncodeThin(9, 4, HashStateUnhashed).WithHashState(HashStateHashed)
	if w.HashState() != HashStateHashed {
		t.Errorf("HashState() = %d, want HashStateHashed", w.HashState())
	}
	if w.ThinOwner() != 9 || w.ThinCount() != 4 {
		t.Errorf("owner/count disturbed: got %d/%d, want 9/4", w.ThinOwner(), w.ThinCount())
	}

	f := EncodeFat(77, HashStateUnhashed).WithHashState(HashStateHashed)
	if f.Shape() != ShapeFat || f.MonitorID() != 77 {
		t.Errorf("fat fields disturbed: %s", f)
	}
}

// TestGetThinLockId verifies the racy diagnostic read.
func TestGetThinLockId(t *testing.T) {
	if got := GetThinLockId(EncodeThin(31, 2, HashStateHashed)); got != 31 {
		t.Errorf("GetThinLockId = %d, want 31", got)
	}
	if got := GetThinLockId(Unlocked(HashStateUnhashed)); got != 0 {
		t.Errorf("GetThinLockId on unheld word = %d, want 0", got)
	}
}

// TestReservedHashState verifies value 2 decodes faithfully without meaning.
func TestReservedHashState(t *testing.T) {
	w := Word(2 << 1) // reserved hash state, never produced by the codec
	if got := w.HashState(); got != HashState(2) {
		t.Errorf("HashState() = %d, want 2", got)
	}
	if w.Shape() != ShapeThin {
		t.Errorf("Shape() = %d, want ShapeThin", w.Shape())
	}
}

// TestString smoke-tests the debug rendering for both shapes.
func TestString(t *testing.T) {
	if got := EncodeThin(5, 1, HashStateUnhashed).String(); got != "thin{owner=5 count=1 hash=0}" {
		t.Errorf("String() = %q", got)
	}
	if got := EncodeFat(9, HashStateHashed).String(); got != "fat{monitor=9 hash=1}" {
		t.Errorf("String() = %q", got)
	}
}

package bytesmap

import (
	"math"
	"math/bits"
	"unsafe"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

const (
	// the table grows once it is more than maxLoadNum/maxLoadDen full
	maxLoadNum = 3
	maxLoadDen = 4
)

// index is an open-addressing hash table with linear probing. entries are
// kept densely in insertion order; each non-zero slot holds the position of
// an entry plus one, so the zero value marks an empty slot.
type index[O Offset, V any] struct {
	entries []entry[O, V]
	slots   []uint32
	mask    uint64
}

func newIndex[O Offset, V any](capacity int) index[O, V] {
	n := slotCount(capacity)
	return index[O, V]{
		entries: make([]entry[O, V], 0, n*maxLoadNum/maxLoadDen),
		slots:   make([]uint32, n),
		mask:    uint64(n - 1),
	}
}

// slotCount rounds capacity up to a power of two, at least 8.
func slotCount(capacity int) int {
	if capacity < 8 {
		capacity = 8
	}
	return 1 << bits.Len(uint(capacity-1))
}

// find probes for an entry with the given hash that satisfies eq. On a miss
// it returns nil and the empty slot where the entry belongs.
func (ix *index[O, V]) find(hash uint64, eq func(*entry[O, V]) bool) (*entry[O, V], uint64) {
	for slot := hash & ix.mask; ; slot = (slot + 1) & ix.mask {
		pos := ix.slots[slot]
		if pos == 0 {
			return nil, slot
		}
		e := &ix.entries[pos-1]
		if e.hash == hash && eq(e) {
			return e, slot
		}
	}
}

// insert stores e in the empty slot returned by find and returns a pointer
// to the stored entry. The pointer is valid until the next insert.
func (ix *index[O, V]) insert(slot uint64, e entry[O, V]) *entry[O, V] {
	if (len(ix.entries)+1)*maxLoadDen > len(ix.slots)*maxLoadNum {
		ix.grow()
		slot = ix.emptySlot(e.hash)
	}
	if uint64(len(ix.entries)) >= math.MaxUint32-1 {
		panic(errors.New(errors.ErrorTypeOverflow, "index holds too many distinct values").
			WithDetail("entries", len(ix.entries)))
	}
	ix.entries = append(ix.entries, e)
	ix.slots[slot] = uint32(len(ix.entries))
	return &ix.entries[len(ix.entries)-1]
}

// grow doubles the slot table and re-places every entry from its cached hash.
func (ix *index[O, V]) grow() {
	n := len(ix.slots) * 2
	ix.slots = make([]uint32, n)
	ix.mask = uint64(n - 1)
	for i := range ix.entries {
		ix.slots[ix.emptySlot(ix.entries[i].hash)] = uint32(i + 1)
	}
}

func (ix *index[O, V]) emptySlot(hash uint64) uint64 {
	slot := hash & ix.mask
	for ix.slots[slot] != 0 {
		slot = (slot + 1) & ix.mask
	}
	return slot
}

func (ix *index[O, V]) len() int {
	return len(ix.entries)
}

// size returns the bytes reserved by the slot table and the entries.
func (ix *index[O, V]) size() int {
	var e entry[O, V]
	return cap(ix.slots)*int(unsafe.Sizeof(uint32(0))) + cap(ix.entries)*int(unsafe.Sizeof(e))
}

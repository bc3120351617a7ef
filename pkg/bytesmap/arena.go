package bytesmap

import (
	"unsafe"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// arena holds the bytes of every distinct value back to back. offsets has
// one boundary per distinct value plus the leading zero, so after N values
// len(offsets) == N+1 and offsets[N] == len(buf). The null value owns a
// zero-length range. Both slices only grow, so a range returned by append
// stays valid for the life of the arena.
type arena[O Offset] struct {
	buf     []byte
	offsets []O
	// limit is the largest end offset O can hold.
	limit int64
}

func newArena[O Offset](capacity int) arena[O] {
	offsets := make([]O, 1, DefaultInitialCapacity+1)
	return arena[O]{
		buf:     make([]byte, 0, capacity),
		offsets: offsets,
		limit:   maxOffset[O](),
	}
}

// append copies value into the arena, records its end boundary and returns
// its start offset. It panics before writing anything if the arena would no
// longer be addressable with O.
func (a *arena[O]) append(value []byte) int {
	start := len(a.buf)
	end := int64(start) + int64(len(value))
	if end > a.limit {
		var o O
		panic(errors.Newf(errors.ErrorTypeOverflow,
			"put %d bytes in buffer, more than can be represented by a %T", end, o).
			WithDetail("buffer_len", start).
			WithDetail("value_len", len(value)))
	}
	a.buf = append(a.buf, value...)
	a.offsets = append(a.offsets, O(end))
	return start
}

// appendNull records a zero-length boundary for the null value.
func (a *arena[O]) appendNull() {
	a.offsets = append(a.offsets, O(len(a.buf)))
}

// rangeFor returns the bytes of a range previously returned by append.
// The result is capped so appending to it cannot overwrite later values.
func (a *arena[O]) rangeFor(start, length int) []byte {
	return a.buf[start : start+length : start+length]
}

// len returns the number of recorded values, null included.
func (a *arena[O]) len() int {
	return len(a.offsets) - 1
}

// size returns the bytes reserved by both slices.
func (a *arena[O]) size() int {
	var o O
	return cap(a.buf) + cap(a.offsets)*int(unsafe.Sizeof(o))
}

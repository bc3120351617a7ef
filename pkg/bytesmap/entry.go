package bytesmap

import "bytes"

// shortValueLen is the longest value stored inline in its entry.
const shortValueLen = 8

// entry is the fixed-size record kept in the index for every distinct
// non-null value. When length <= shortValueLen, location holds the value
// bytes packed most significant byte first; otherwise it holds the start
// offset of the value in the arena.
type entry[O Offset, V any] struct {
	hash     uint64
	location uint64
	length   O
	payload  V
}

// packInline folds up to eight bytes into a word, first byte highest.
// Values of different lengths can pack to the same word ("\x00a" and "a"),
// so the length must be compared as well.
func packInline(value []byte) uint64 {
	var w uint64
	for _, b := range value {
		w = w<<8 | uint64(b)
	}
	return w
}

// equal reports whether e holds value.
func (e *entry[O, V]) equal(value []byte, a *arena[O]) bool {
	if int(e.length) != len(value) {
		return false
	}
	if len(value) <= shortValueLen {
		return e.location == packInline(value)
	}
	return bytes.Equal(a.rangeFor(int(e.location), len(value)), value)
}

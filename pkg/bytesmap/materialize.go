package bytesmap

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// IntoArray materializes the distinct values in first-seen order and
// resets the map. The returned array wraps the arena and offsets directly;
// only the validity bitmap, present when a null was inserted, is allocated.
func (m *BytesMap[O, V]) IntoArray() arrow.Array {
	arr := m.materialize()
	m.reset()
	return arr
}

// Drain is IntoArray that also returns the payloads aligned with the rows
// of the returned array.
func (m *BytesMap[O, V]) Drain() (arrow.Array, []V) {
	payloads := make([]V, 0, m.Len())
	for i := range m.index.entries {
		if m.null.present && len(payloads) == m.null.index {
			payloads = append(payloads, m.null.payload)
		}
		payloads = append(payloads, m.index.entries[i].payload)
	}
	if m.null.present && len(payloads) == m.null.index {
		payloads = append(payloads, m.null.payload)
	}
	return m.IntoArray(), payloads
}

func (m *BytesMap[O, V]) materialize() arrow.Array {
	n := m.arena.len()

	offsets := memory.NewBufferBytes(offsetBytes(m.arena.offsets))
	values := memory.NewBufferBytes(m.arena.buf)

	var validity *memory.Buffer
	nulls := 0
	if m.null.present {
		validity = memory.NewResizableBuffer(m.opts.allocator)
		validity.Resize(int(bitutil.BytesForBits(int64(n))))
		bitutil.SetBitsTo(validity.Bytes(), 0, int64(n), true)
		bitutil.ClearBit(validity.Bytes(), m.null.index)
		nulls = 1
		defer validity.Release()
	}

	data := array.NewData(m.DataType(), n, []*memory.Buffer{validity, offsets, values}, nil, nulls, 0)
	defer data.Release()
	return array.MakeFromData(data)
}

// offsetBytes reinterprets the offsets as the little-endian bytes of an
// Arrow offsets buffer.
func offsetBytes[O Offset](offsets []O) []byte {
	switch offs := any(offsets).(type) {
	case []int32:
		return arrow.Int32Traits.CastToBytes(offs)
	case []int64:
		return arrow.Int64Traits.CastToBytes(offs)
	default:
		return nil
	}
}

package bytesmap

import (
	"fmt"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
)

// nullSlot records the payload of the null value and its position in the
// materialized output.
type nullSlot[V any] struct {
	payload V
	index   int
	present bool
}

// BytesMap maps distinct byte values to payloads of type V and can
// materialize the distinct values as an Arrow array with offsets of type O.
type BytesMap[O Offset, V any] struct {
	outputType OutputType
	opts       options

	hasher hasher
	index  index[O, V]
	arena  arena[O]
	null   nullSlot[V]

	// hashes is scratch space reused across batches
	hashes []uint64
}

// New creates an empty map producing outputType values.
func New[O Offset, V any](outputType OutputType, opts ...Option) *BytesMap[O, V] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &BytesMap[O, V]{outputType: outputType, opts: o}
	m.reset()
	return m
}

func (m *BytesMap[O, V]) reset() {
	m.hasher = newHasher()
	m.index = newIndex[O, V](m.opts.initialCapacity)
	m.arena = newArena[O](m.opts.bufferCapacity)
	m.null = nullSlot[V]{}
	m.hashes = nil
}

// InsertIfNew inserts every value of values that is not yet present. For
// each new value makePayload is called once, in row order, to build its
// payload. observe is then called with the payload of every row, whether
// the value was new or not. Existing payloads are never modified.
//
// It panics if values is not of a type accepted by the map's OutputType.
func (m *BytesMap[O, V]) InsertIfNew(values arrow.Array, makePayload MakePayloadFunc[V], observe ObservePayloadFunc[V]) {
	m.upsert(values, makePayload,
		func(p *V) { observe(*p) },
		func(p *V) { observe(*p) })
}

// InsertOrUpdate inserts every value of values that is not yet present,
// building its payload with makePayload, and calls update with a pointer to
// the stored payload for every value that was already present. Exactly one
// of the two callbacks runs per row, in row order.
//
// It panics if values is not of a type accepted by the map's OutputType.
func (m *BytesMap[O, V]) InsertOrUpdate(values arrow.Array, makePayload MakePayloadFunc[V], update UpdatePayloadFunc[V]) {
	m.upsert(values, makePayload,
		func(p *V) { update(p) },
		func(*V) {})
}

// upsert is the traversal shared by both protocols. onHit runs for rows
// whose value was already present, onNew right after a value is created.
func (m *BytesMap[O, V]) upsert(values arrow.Array, makePayload MakePayloadFunc[V], onHit, onNew func(*V)) {
	b := newBatch(values, m.outputType)
	m.hashes = m.hasher.hashBatch(&b, m.hashes)

	for i := 0; i < b.len(); i++ {
		if b.isNull(i) {
			if m.null.present {
				onHit(&m.null.payload)
				continue
			}
			payload := makePayload(nil, false)
			m.null = nullSlot[V]{payload: payload, index: m.arena.len(), present: true}
			m.arena.appendNull()
			onNew(&m.null.payload)
			continue
		}

		value := b.value(i)
		hash := m.hashes[i]
		e, slot := m.index.find(hash, func(e *entry[O, V]) bool {
			return e.equal(value, &m.arena)
		})
		if e != nil {
			onHit(&e.payload)
			continue
		}

		var location uint64
		if len(value) <= shortValueLen {
			location = packInline(value)
			m.arena.append(value)
		} else {
			location = uint64(m.arena.append(value))
		}
		payload := makePayload(value, true)
		e = m.index.insert(slot, entry[O, V]{
			hash:     hash,
			location: location,
			length:   O(len(value)),
			payload:  payload,
		})
		onNew(&e.payload)
	}
}

// GetPayloads returns the payload stored for each row of values. Rows whose
// value, null included, was never inserted come back with Valid == false.
// The map is not modified.
//
// It panics if values is not of a type accepted by the map's OutputType.
func (m *BytesMap[O, V]) GetPayloads(values arrow.Array) []Payload[V] {
	b := newBatch(values, m.outputType)
	m.hashes = m.hasher.hashBatch(&b, m.hashes)

	out := make([]Payload[V], b.len())
	for i := range out {
		if b.isNull(i) {
			if m.null.present {
				out[i] = Payload[V]{Value: m.null.payload, Valid: true}
			}
			continue
		}
		value := b.value(i)
		e, _ := m.index.find(m.hashes[i], func(e *entry[O, V]) bool {
			return e.equal(value, &m.arena)
		})
		if e != nil {
			out[i] = Payload[V]{Value: e.payload, Valid: true}
		}
	}
	return out
}

// Take returns the accumulated state as a new map and leaves m empty, with
// the same output type and options.
func (m *BytesMap[O, V]) Take() *BytesMap[O, V] {
	taken := &BytesMap[O, V]{}
	*taken = *m
	m.reset()
	return taken
}

// Len returns the number of distinct values, null included.
func (m *BytesMap[O, V]) Len() int {
	n := m.index.len()
	if m.null.present {
		n++
	}
	return n
}

// NonNullLen returns the number of distinct non-null values.
func (m *BytesMap[O, V]) NonNullLen() int {
	return m.index.len()
}

// IsEmpty reports whether no value has been inserted.
func (m *BytesMap[O, V]) IsEmpty() bool {
	return m.Len() == 0
}

// OutputType returns the kind of values the map accepts and produces.
func (m *BytesMap[O, V]) OutputType() OutputType {
	return m.outputType
}

// DataType returns the Arrow type IntoArray produces.
func (m *BytesMap[O, V]) DataType() arrow.DataType {
	return DataTypeOf[O](m.outputType)
}

// Size returns the number of bytes reserved by the map: the index, the
// arena and its offsets, and the hash scratch space.
func (m *BytesMap[O, V]) Size() int {
	return m.index.size() + m.arena.size() + cap(m.hashes)*int(unsafe.Sizeof(uint64(0)))
}

// String returns a short description for logs and debugging.
func (m *BytesMap[O, V]) String() string {
	return fmt.Sprintf("BytesMap[%s]{len: %d, nulls: %t, bytes: %d, size: %d}",
		m.DataType(), m.Len(), m.null.present, len(m.arena.buf), m.Size())
}

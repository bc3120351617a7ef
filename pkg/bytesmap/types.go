package bytesmap

import (
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

const (
	// DefaultInitialCapacity is the number of index slots a new map starts with
	DefaultInitialCapacity = 128
	// DefaultBufferCapacity is the initial byte capacity of the arena
	DefaultBufferCapacity = 8 * 1024
)

// Offset is the width of the offsets recorded in the arena and emitted in
// the materialized array.
type Offset interface {
	int32 | int64
}

// OutputType selects whether distinct values materialize as text or binary.
type OutputType int

const (
	// Utf8 materializes String (int32 offsets) or LargeString (int64 offsets)
	Utf8 OutputType = iota
	// Binary materializes Binary (int32 offsets) or LargeBinary (int64 offsets)
	Binary
)

// String returns the name of the output type
func (t OutputType) String() string {
	switch t {
	case Utf8:
		return "utf8"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Accepts reports whether arrays of type id can be fed to a map of this kind.
func (t OutputType) Accepts(id arrow.Type) bool {
	switch t {
	case Utf8:
		return id == arrow.STRING || id == arrow.LARGE_STRING
	case Binary:
		return id == arrow.BINARY || id == arrow.LARGE_BINARY
	default:
		return false
	}
}

// DataTypeOf returns the Arrow type materialized for kind t with offsets O.
func DataTypeOf[O Offset](t OutputType) arrow.DataType {
	large := isLarge[O]()
	switch {
	case t == Utf8 && large:
		return arrow.BinaryTypes.LargeString
	case t == Utf8:
		return arrow.BinaryTypes.String
	case large:
		return arrow.BinaryTypes.LargeBinary
	default:
		return arrow.BinaryTypes.Binary
	}
}

func isLarge[O Offset]() bool {
	var o O
	_, ok := any(o).(int64)
	return ok
}

func maxOffset[O Offset]() int64 {
	if isLarge[O]() {
		return math.MaxInt64
	}
	return math.MaxInt32
}

// MakePayloadFunc builds the payload for a value seen for the first time.
// valid is false for the null entry, in which case value is nil. value is
// only valid for the duration of the call.
type MakePayloadFunc[V any] func(value []byte, valid bool) V

// ObservePayloadFunc receives the payload of every row passed to InsertIfNew.
type ObservePayloadFunc[V any] func(payload V)

// UpdatePayloadFunc mutates the stored payload of a repeated value in place.
type UpdatePayloadFunc[V any] func(payload *V)

// Payload is the result of a lookup. Valid is false when the key was never
// inserted.
type Payload[V any] struct {
	Value V
	Valid bool
}

// Option configures a map
type Option func(*options)

type options struct {
	allocator       memory.Allocator
	initialCapacity int
	bufferCapacity  int
}

func defaultOptions() options {
	return options{
		allocator:       memory.DefaultAllocator,
		initialCapacity: DefaultInitialCapacity,
		bufferCapacity:  DefaultBufferCapacity,
	}
}

// WithAllocator sets the allocator used for buffers the map allocates at
// materialization time, such as the validity bitmap.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *options) {
		if mem != nil {
			o.allocator = mem
		}
	}
}

// WithInitialCapacity sets the initial number of index slots. It is rounded
// up to a power of two.
func WithInitialCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.initialCapacity = n
		}
	}
}

// WithBufferCapacity sets the initial byte capacity of the arena.
func WithBufferCapacity(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.bufferCapacity = n
		}
	}
}

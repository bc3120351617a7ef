package bytesmap

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// batch is a read-only view over the offsets and data of a byte array of
// either offset width. Offsets are absolute while data starts at the first
// offset, so every value is shifted by base.
type batch struct {
	arr    arrow.Array
	data   []byte
	offs32 []int32
	offs64 []int64
	base   int64
}

// newBatch checks values against kind and returns a view over it.
func newBatch(values arrow.Array, kind OutputType) batch {
	if !kind.Accepts(values.DataType().ID()) {
		panic(errors.New(errors.ErrorTypeTypeMismatch, "unexpected array type for map").
			WithDetail("expected", kind.String()).
			WithDetail("actual", values.DataType().String()))
	}

	b := batch{arr: values}
	if values.Len() == 0 {
		return b
	}
	switch a := values.(type) {
	case *array.String:
		b.offs32, b.data = a.ValueOffsets(), a.ValueBytes()
	case *array.LargeString:
		b.offs64, b.data = a.ValueOffsets(), a.ValueBytes()
	case *array.Binary:
		b.offs32, b.data = a.ValueOffsets(), a.ValueBytes()
	case *array.LargeBinary:
		b.offs64, b.data = a.ValueOffsets(), a.ValueBytes()
	default:
		panic(errors.Newf(errors.ErrorTypeTypeMismatch, "unsupported array implementation %T", values))
	}
	if b.offs32 != nil {
		b.base = int64(b.offs32[0])
	} else {
		b.base = b.offs64[0]
	}
	return b
}

func (b *batch) len() int {
	return b.arr.Len()
}

func (b *batch) isNull(i int) bool {
	return b.arr.IsNull(i)
}

// value returns the bytes of row i without copying.
func (b *batch) value(i int) []byte {
	var start, end int64
	if b.offs32 != nil {
		start, end = int64(b.offs32[i]), int64(b.offs32[i+1])
	} else {
		start, end = b.offs64[i], b.offs64[i+1]
	}
	return b.data[start-b.base : end-b.base]
}

package columnar

import (
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// Conform returns arr typed so that a map of kind accepts it. String and
// binary arrays share a layout, so a mismatch is fixed by relabelling the
// buffers without copying. Binary values relabelled as strings must be
// valid UTF-8, otherwise ErrorTypeData is returned. The result is a new
// reference.
func Conform(arr arrow.Array, kind bytesmap.OutputType) (arrow.Array, error) {
	id := arr.DataType().ID()
	if kind.Accepts(id) {
		arr.Retain()
		return arr, nil
	}

	var dt arrow.DataType
	switch id {
	case arrow.STRING:
		dt = arrow.BinaryTypes.Binary
	case arrow.LARGE_STRING:
		dt = arrow.BinaryTypes.LargeBinary
	case arrow.BINARY:
		dt = arrow.BinaryTypes.String
	case arrow.LARGE_BINARY:
		dt = arrow.BinaryTypes.LargeString
	default:
		return nil, errors.Newf(errors.ErrorTypeTypeMismatch, "column of type %s cannot be read as %s",
			arr.DataType(), kind).
			WithDetail("expected", kind.String()).
			WithDetail("actual", arr.DataType().String())
	}

	if kind == bytesmap.Utf8 {
		if err := checkUTF8(arr.(byteValues)); err != nil {
			return nil, err
		}
	}

	data := arr.Data()
	view := array.NewData(dt, data.Len(), data.Buffers(), nil, data.NullN(), data.Offset())
	defer view.Release()
	return array.MakeFromData(view), nil
}

// byteValues is the row access of Binary and LargeBinary arrays.
type byteValues interface {
	arrow.Array
	Value(i int) []byte
}

func checkUTF8(arr byteValues) error {
	for i := 0; i < arr.Len(); i++ {
		if arr.IsValid(i) && !utf8.Valid(arr.Value(i)) {
			return invalidUTF8(i)
		}
	}
	return nil
}

func invalidUTF8(row int) error {
	return errors.New(errors.ErrorTypeData, "binary value is not valid UTF-8; read the column as binary").
		WithDetail("row", row)
}

// chunkBuilder accumulates row oriented values into arrays of one type.
type chunkBuilder struct {
	b     array.Builder
	raw   *array.BinaryBuilder
	text  bool
	nulls map[string]struct{}
}

func newChunkBuilder(mem memory.Allocator, kind bytesmap.OutputType, nullValues []string) *chunkBuilder {
	b := array.NewBuilder(mem, bytesmap.DataTypeOf[int32](kind))
	cb := &chunkBuilder{b: b}
	switch bb := b.(type) {
	case *array.StringBuilder:
		cb.raw = bb.BinaryBuilder
		cb.text = true
	case *array.BinaryBuilder:
		cb.raw = bb
	}
	if len(nullValues) > 0 {
		cb.nulls = make(map[string]struct{}, len(nullValues))
		for _, v := range nullValues {
			cb.nulls[v] = struct{}{}
		}
	}
	return cb
}

// append adds v, or a null when v is a configured null value. Text
// chunks reject bytes that are not valid UTF-8.
func (c *chunkBuilder) append(v []byte) error {
	if c.nulls != nil {
		if _, ok := c.nulls[string(v)]; ok {
			c.raw.AppendNull()
			return nil
		}
	}
	if c.text && !utf8.Valid(v) {
		return invalidUTF8(c.raw.Len())
	}
	c.raw.Append(v)
	return nil
}

func (c *chunkBuilder) appendNull() { c.raw.AppendNull() }

func (c *chunkBuilder) len() int { return c.b.Len() }

func (c *chunkBuilder) dataType() arrow.DataType { return c.b.Type() }

func (c *chunkBuilder) finish() arrow.Array { return c.b.NewArray() }

func (c *chunkBuilder) release() { c.b.Release() }

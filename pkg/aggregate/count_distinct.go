package aggregate

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// CountDistinct counts the distinct non-null values of a byte column.
// Its state is the set of distinct values seen, null included.
type CountDistinct[O bytesmap.Offset] struct {
	set    *bytesmap.BytesSet[O]
	schema *arrow.Schema
}

// NewCountDistinct creates a COUNT DISTINCT accumulator for values of kind.
func NewCountDistinct[O bytesmap.Offset](kind bytesmap.OutputType, opts ...bytesmap.Option) *CountDistinct[O] {
	return &CountDistinct[O]{
		set: bytesmap.NewSet[O](kind, opts...),
		schema: arrow.NewSchema([]arrow.Field{
			{Name: ValueField, Type: valueType[O](kind), Nullable: true},
		}, nil),
	}
}

// Update adds every value of values to the distinct set.
func (c *CountDistinct[O]) Update(values arrow.Array) (err error) {
	defer errors.Recover(&err)
	c.set.Insert(values)
	return nil
}

// Merge adds the values of a state record from another accumulator.
func (c *CountDistinct[O]) Merge(state arrow.Record) (err error) {
	defer errors.Recover(&err)
	if state.NumCols() < 1 {
		return errors.New(errors.ErrorTypeValidation, "count distinct state has no value column")
	}
	c.set.Insert(state.Column(0))
	return nil
}

// State drains the distinct values into a single-column record.
func (c *CountDistinct[O]) State() (arrow.Record, error) {
	values := c.set.IntoArray()
	defer values.Release()
	return array.NewRecord(c.schema, []arrow.Array{values}, int64(values.Len())), nil
}

// Evaluate returns the number of distinct non-null values.
func (c *CountDistinct[O]) Evaluate() int64 {
	return int64(c.set.NonNullLen())
}

// Schema describes the records returned by State.
func (c *CountDistinct[O]) Schema() *arrow.Schema { return c.schema }

// Len returns the number of distinct values held, null included.
func (c *CountDistinct[O]) Len() int { return c.set.Len() }

// Size returns the bytes reserved by the accumulator.
func (c *CountDistinct[O]) Size() int { return c.set.Size() }

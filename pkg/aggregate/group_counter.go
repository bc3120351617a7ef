package aggregate

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// GroupCounter computes GROUP BY value, COUNT(*) over a byte column.
// Null rows form their own group.
type GroupCounter[O bytesmap.Offset] struct {
	counts *bytesmap.BytesMap[O, int64]
	schema *arrow.Schema
}

// NewGroupCounter creates a group counter for values of kind.
func NewGroupCounter[O bytesmap.Offset](kind bytesmap.OutputType, opts ...bytesmap.Option) *GroupCounter[O] {
	return &GroupCounter[O]{
		counts: bytesmap.New[O, int64](kind, opts...),
		schema: arrow.NewSchema([]arrow.Field{
			{Name: ValueField, Type: valueType[O](kind), Nullable: true},
			{Name: CountField, Type: arrow.PrimitiveTypes.Int64},
		}, nil),
	}
}

func one([]byte, bool) int64 { return 1 }

func increment(c *int64) { *c++ }

// Update counts every row of values.
func (g *GroupCounter[O]) Update(values arrow.Array) (err error) {
	defer errors.Recover(&err)
	g.counts.InsertOrUpdate(values, one, increment)
	return nil
}

// Merge adds the counts of a (value, count) state record.
func (g *GroupCounter[O]) Merge(state arrow.Record) (err error) {
	defer errors.Recover(&err)
	if state.NumCols() < 2 {
		return errors.New(errors.ErrorTypeValidation, "group count state needs value and count columns")
	}
	counts, ok := state.Column(1).(*array.Int64)
	if !ok {
		return errors.Newf(errors.ErrorTypeTypeMismatch, "count column has type %s", state.Column(1).DataType())
	}
	if counts.Len() != state.Column(0).Len() {
		return errors.New(errors.ErrorTypeValidation, "count column length differs from value column").
			WithDetail("values", state.Column(0).Len()).
			WithDetail("counts", counts.Len())
	}
	if counts.NullN() != 0 {
		return errors.New(errors.ErrorTypeValidation, "count column has nulls").
			WithDetail("nulls", counts.NullN())
	}

	// exactly one callback runs per row, in row order
	row := 0
	g.counts.InsertOrUpdate(state.Column(0),
		func([]byte, bool) int64 {
			n := counts.Value(row)
			row++
			return n
		},
		func(c *int64) {
			*c += counts.Value(row)
			row++
		})
	return nil
}

// Lookup returns the current count of each row of values, zero for values
// never seen.
func (g *GroupCounter[O]) Lookup(values arrow.Array) (out []int64, err error) {
	defer errors.Recover(&err)
	payloads := g.counts.GetPayloads(values)
	out = make([]int64, len(payloads))
	for i, p := range payloads {
		if p.Valid {
			out[i] = p.Value
		}
	}
	return out, nil
}

// State drains the groups into a (value, count) record in first-seen order.
func (g *GroupCounter[O]) State() (arrow.Record, error) {
	values, counts := g.counts.Drain()
	defer values.Release()

	countArr := int64Array(counts)
	defer countArr.Release()

	return array.NewRecord(g.schema, []arrow.Array{values, countArr}, int64(values.Len())), nil
}

// Take moves the accumulated groups into a new counter and leaves g empty.
func (g *GroupCounter[O]) Take() *GroupCounter[O] {
	return &GroupCounter[O]{counts: g.counts.Take(), schema: g.schema}
}

// Schema describes the records returned by State.
func (g *GroupCounter[O]) Schema() *arrow.Schema { return g.schema }

// Len returns the number of groups, the null group included.
func (g *GroupCounter[O]) Len() int { return g.counts.Len() }

// Size returns the bytes reserved by the counter.
func (g *GroupCounter[O]) Size() int { return g.counts.Size() }

// int64Array wraps counts as an Int64 array without copying.
func int64Array(counts []int64) *array.Int64 {
	buf := memory.NewBufferBytes(arrow.Int64Traits.CastToBytes(counts))
	data := array.NewData(arrow.PrimitiveTypes.Int64, len(counts), []*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()
	return array.NewInt64Data(data)
}

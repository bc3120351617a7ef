// Package aggregate implements COUNT DISTINCT and single-column GROUP BY
// operators on top of bytesmap.
//
// Operators consume Arrow arrays and expose their partial state as Arrow
// records so that state can be spilled, shipped between partitions and
// merged back. Panics raised by the underlying map, such as a type
// mismatch, are returned as errors.
package aggregate

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
)

const (
	// ValueField names the column holding distinct values in state records
	ValueField = "value"
	// CountField names the column holding per-value counts
	CountField = "count"
)

// Accumulator is an operator whose partial state can be taken, spilled
// and merged.
type Accumulator interface {
	// Update consumes a batch of input values.
	Update(values arrow.Array) error
	// Merge folds a state record produced by State into the accumulator.
	Merge(state arrow.Record) error
	// State drains the accumulated state into a record and resets the
	// accumulator. Rows appear in first-seen order.
	State() (arrow.Record, error)
	// Schema describes the records returned by State.
	Schema() *arrow.Schema
	// Len returns the number of distinct values held.
	Len() int
	// Size returns the bytes reserved by the accumulator.
	Size() int
}

func valueType[O bytesmap.Offset](kind bytesmap.OutputType) arrow.DataType {
	return bytesmap.DataTypeOf[O](kind)
}

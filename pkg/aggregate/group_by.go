package aggregate

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// GroupBy assigns dense group ids to the distinct values of a byte column,
// in first-seen order. It is the group index used by hash aggregation:
// accumulators keep per-group state in slices indexed by the ids.
type GroupBy[O bytesmap.Offset] struct {
	groups *bytesmap.BytesMap[O, uint32]
	next   uint32
}

// NewGroupBy creates an empty group index for values of kind.
func NewGroupBy[O bytesmap.Offset](kind bytesmap.OutputType, opts ...bytesmap.Option) *GroupBy[O] {
	return &GroupBy[O]{groups: bytesmap.New[O, uint32](kind, opts...)}
}

// Intern appends the group id of every row of values to ids and returns
// the extended slice. New values get the next free id. On error out is ids
// as passed in.
func (g *GroupBy[O]) Intern(values arrow.Array, ids []uint32) (out []uint32, err error) {
	out = ids
	defer errors.Recover(&err)
	grown := ids
	g.groups.InsertIfNew(values,
		func([]byte, bool) uint32 {
			id := g.next
			g.next++
			return id
		},
		func(id uint32) { grown = append(grown, id) })
	return grown, nil
}

// Emit returns the group values ordered by group id and resets the index.
func (g *GroupBy[O]) Emit() arrow.Array {
	g.next = 0
	return g.groups.IntoArray()
}

// Len returns the number of groups, the null group included.
func (g *GroupBy[O]) Len() int { return g.groups.Len() }

// Size returns the bytes reserved by the index.
func (g *GroupBy[O]) Size() int { return g.groups.Size() }

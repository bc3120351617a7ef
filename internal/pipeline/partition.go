package pipeline

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/formats/columnar"
	"github.com/ajitpratap0/bytesmap/pkg/pool"
)

// binaryValues is the row access shared by Binary and LargeBinary arrays.
type binaryValues interface {
	arrow.Array
	Value(i int) []byte
}

// partitioner routes rows to partitions by value hash. Equal values always
// land in the same partition and every null row goes to partition 0, so
// partitions never share a group.
type partitioner struct {
	n    int
	kind bytesmap.OutputType
	mem  memory.Allocator

	dtype    arrow.DataType
	builders []*array.BinaryBuilder
}

func newPartitioner(n int, kind bytesmap.OutputType, mem memory.Allocator) *partitioner {
	return &partitioner{n: n, kind: kind, mem: mem}
}

func (p *partitioner) buildersFor(dt arrow.DataType) []*array.BinaryBuilder {
	if p.dtype != nil && arrow.TypeEqual(p.dtype, dt) {
		return p.builders
	}
	p.release()
	p.dtype = dt
	p.builders = make([]*array.BinaryBuilder, p.n)
	for i := range p.builders {
		p.builders[i] = array.NewBinaryBuilder(p.mem, dt.(arrow.BinaryDataType))
	}
	return p.builders
}

// partitionOf returns the partition for a non-null value.
func partitionOf(value []byte, n int) uint32 {
	return uint32(xxhash.Sum64(value) % uint64(n))
}

// split returns one array per partition holding that partition's rows of
// chunk in input order, or nil where a partition received no rows.
func (p *partitioner) split(chunk arrow.Array) ([]arrow.Array, error) {
	conformed, err := columnar.Conform(chunk, p.kind)
	if err != nil {
		return nil, err
	}
	if p.n == 1 {
		return []arrow.Array{conformed}, nil
	}
	defer conformed.Release()
	outType := conformed.DataType()

	raw, err := columnar.Conform(conformed, bytesmap.Binary)
	if err != nil {
		return nil, err
	}
	defer raw.Release()
	values := raw.(binaryValues)
	builders := p.buildersFor(raw.DataType())

	ids := pool.GetPartitionSlice(values.Len())
	defer pool.PutPartitionSlice(ids)

	counts := make([]int, p.n)
	for i := range *ids {
		var part uint32
		if values.IsValid(i) {
			part = partitionOf(values.Value(i), p.n)
		}
		(*ids)[i] = part
		counts[part]++
	}
	for part, c := range counts {
		if c > 0 {
			builders[part].Reserve(c)
		}
	}
	for i, part := range *ids {
		if values.IsNull(i) {
			builders[part].AppendNull()
		} else {
			builders[part].Append(values.Value(i))
		}
	}

	out := make([]arrow.Array, p.n)
	for part, c := range counts {
		if c == 0 {
			continue
		}
		arr := builders[part].NewArray()
		out[part] = retype(arr, outType)
		arr.Release()
	}
	return out, nil
}

// retype relabels the rows of a partition with the type of the chunk they
// came from. Those rows were already checked by Conform.
func retype(arr arrow.Array, dt arrow.DataType) arrow.Array {
	if arrow.TypeEqual(arr.DataType(), dt) {
		arr.Retain()
		return arr
	}
	data := arr.Data()
	view := array.NewData(dt, data.Len(), data.Buffers(), nil, data.NullN(), data.Offset())
	defer view.Release()
	return array.MakeFromData(view)
}

func (p *partitioner) release() {
	for _, b := range p.builders {
		b.Release()
	}
	p.builders = nil
	p.dtype = nil
}

func releaseAll(arrs []arrow.Array) {
	for _, a := range arrs {
		if a != nil {
			a.Release()
		}
	}
}

// Package pool provides typed object pooling for the scratch buffers used
// on hot paths, such as the per-row partition ids computed for every input
// chunk.
//
//	ids := pool.GetPartitionSlice(chunk.Len())
//	defer pool.PutPartitionSlice(ids)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a type-safe wrapper over sync.Pool that counts allocations and
// checkouts. Put runs the optional reset function first.
type Pool[T any] struct {
	pool      sync.Pool
	reset     func(T)
	allocated atomic.Int64
	inUse     atomic.Int64
	gets      atomic.Int64
}

// New creates a pool whose empty Get calls newFn.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any {
		p.allocated.Add(1)
		return newFn()
	}
	return p
}

func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	p.inUse.Add(1)
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.inUse.Add(-1)
	p.pool.Put(obj)
}

// Stats reports objects allocated, objects checked out, and Get calls that
// reused a pooled object.
func (p *Pool[T]) Stats() (allocated, inUse, hits int64) {
	allocated = p.allocated.Load()
	return allocated, p.inUse.Load(), p.gets.Load() - allocated
}

// partitionSliceCap matches the default input batch size.
const partitionSliceCap = 64 * 1024

// PartitionSlicePool pools per-row partition id slices.
var PartitionSlicePool = New(
	func() *[]uint32 {
		s := make([]uint32, 0, partitionSliceCap)
		return &s
	},
	func(s *[]uint32) { *s = (*s)[:0] },
)

// GetPartitionSlice returns a slice of length n from the pool. Its contents
// are unspecified.
func GetPartitionSlice(n int) *[]uint32 {
	s := PartitionSlicePool.Get()
	if cap(*s) < n {
		*s = make([]uint32, n)
	}
	*s = (*s)[:n]
	return s
}

// PutPartitionSlice returns a slice obtained from GetPartitionSlice.
// It is safe to call with nil.
func PutPartitionSlice(s *[]uint32) {
	if s != nil {
		PartitionSlicePool.Put(s)
	}
}

package pool_test

import (
	"bytes"
	"fmt"

	"github.com/ajitpratap0/bytesmap/pkg/pool"
)

// Example shows reusing a partition id slice across chunks.
func Example() {
	for _, rows := range []int{3, 5} {
		ids := pool.GetPartitionSlice(rows)
		for i := range *ids {
			(*ids)[i] = uint32(i % 2)
		}
		fmt.Println(*ids)
		pool.PutPartitionSlice(ids)
	}

	// Output:
	// [0 1 0]
	// [0 1 0 1 0]
}

// ExampleNew demonstrates a custom pool with a reset function.
func ExampleNew() {
	buffers := pool.New(
		func() *bytes.Buffer { return new(bytes.Buffer) },
		func(b *bytes.Buffer) { b.Reset() },
	)

	buf := buffers.Get()
	buf.WriteString("scratch")
	fmt.Println(buf.Len())
	buffers.Put(buf)

	buf = buffers.Get()
	fmt.Println(buf.Len())
	buffers.Put(buf)

	// Output:
	// 7
	// 0
}

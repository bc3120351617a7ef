package pipeline

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bytesmap/pkg/aggregate"
	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
	"github.com/ajitpratap0/bytesmap/pkg/formats/columnar"
	"github.com/ajitpratap0/bytesmap/pkg/spill"
	"github.com/ajitpratap0/bytesmap/pkg/testutil"
)

// sliceReader serves prepared chunks in order.
type sliceReader struct {
	chunks []arrow.Array
	dtype  arrow.DataType
}

func (r *sliceReader) Next(ctx context.Context) (arrow.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCanceled, "read canceled")
	}
	if len(r.chunks) == 0 {
		return nil, io.EOF
	}
	c := r.chunks[0]
	r.chunks = r.chunks[1:]
	return c, nil
}

func (r *sliceReader) DataType() arrow.DataType { return r.dtype }
func (r *sliceReader) Format() columnar.Format   { return columnar.CSV }

func (r *sliceReader) Close() error {
	releaseAll(r.chunks)
	r.chunks = nil
	return nil
}

// chunked returns a reader over rows split into chunks of size n, plus the
// expected count of every value. Null rows are counted under nil.
func chunked(t *testing.T, mem memory.Allocator, rows []interface{}, n int) (*sliceReader, map[interface{}]int64) {
	t.Helper()
	want := make(map[interface{}]int64)
	r := &sliceReader{dtype: arrow.BinaryTypes.String}
	for start := 0; start < len(rows); start += n {
		end := start + n
		if end > len(rows) {
			end = len(rows)
		}
		r.chunks = append(r.chunks, testutil.BuildArray(t, mem, arrow.BinaryTypes.String, rows[start:end]...))
	}
	for _, v := range rows {
		want[v]++
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, want
}

func sampleRows(count, distinct int) []interface{} {
	rows := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		switch {
		case i%17 == 0:
			rows = append(rows, nil)
		case i%5 == 0:
			// long enough to live in the arena rather than inline
			rows = append(rows, fmt.Sprintf("a-much-longer-value-%04d", i%distinct))
		default:
			rows = append(rows, fmt.Sprintf("v%d", i%distinct))
		}
	}
	return rows
}

func groupCounterFactory(int) aggregate.Accumulator {
	return aggregate.NewGroupCounter[int32](bytesmap.Utf8)
}

// collect folds the partition states into value -> count and checks that
// no value appears in two partitions.
func collect(t *testing.T, states []arrow.Record) map[interface{}]int64 {
	t.Helper()
	got := make(map[interface{}]int64)
	for _, rec := range states {
		values := testutil.Values(t, rec.Column(0))
		cnt := rec.Column(1).(*array.Int64)
		for i, v := range values {
			_, dup := got[v]
			require.False(t, dup, "value %v in more than one partition", v)
			got[v] = cnt.Value(i)
		}
	}
	return got
}

func release(states []arrow.Record) {
	for _, rec := range states {
		rec.Release()
	}
}

func TestRunGroupCounter(t *testing.T) {
	for _, partitions := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("partitions=%d", partitions), func(t *testing.T) {
			mem := testutil.CheckedAllocator(t)
			src, want := chunked(t, mem, sampleRows(2000, 150), 128)

			runner, err := New(Config{
				Operator:   "group_count",
				Kind:       bytesmap.Utf8,
				Partitions: partitions,
				Allocator:  mem,
			}, groupCounterFactory, testutil.TestLogger(t))
			require.NoError(t, err)

			ctx, cancel := testutil.TestContext(t)
			defer cancel()
			states, err := runner.Run(ctx, src)
			require.NoError(t, err)
			defer release(states)

			require.Len(t, states, partitions)
			assert.Equal(t, want, collect(t, states))

			stats := runner.Stats()
			assert.Equal(t, int64(2000), stats.Rows)
			assert.Equal(t, int64(16), stats.Batches)
			assert.Equal(t, int64(len(want)), stats.Groups)
			assert.Zero(t, stats.Spills)
			assert.Greater(t, stats.Duration.Nanoseconds(), int64(0))
		})
	}
}

func TestRunCountDistinct(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	src, want := chunked(t, mem, sampleRows(1000, 90), 100)

	runner, err := New(Config{
		Operator:   "count_distinct",
		Kind:       bytesmap.Binary,
		Partitions: 4,
		Allocator:  mem,
	}, func(int) aggregate.Accumulator {
		return aggregate.NewCountDistinct[int64](bytesmap.Binary)
	}, testutil.TestLogger(t))
	require.NoError(t, err)

	states, err := runner.Run(context.Background(), src)
	require.NoError(t, err)
	defer release(states)

	var distinct int64
	for _, rec := range states {
		assert.Equal(t, arrow.BINARY, rec.Column(0).DataType().ID())
		distinct += int64(rec.Column(0).Len() - rec.Column(0).NullN())
	}
	delete(want, nil)
	assert.Equal(t, int64(len(want)), distinct)
}

func TestRunSpills(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	rows := sampleRows(3000, 400)
	src, want := chunked(t, mem, rows, 50)

	manager, err := spill.NewManager(spill.Config{Directory: t.TempDir()}, testutil.TestLogger(t))
	require.NoError(t, err)
	defer manager.Close()

	runner, err := New(Config{
		Operator:        "group_count",
		Kind:            bytesmap.Utf8,
		Partitions:      2,
		PartitionBudget: 1,
		Spill:           manager,
		Allocator:       mem,
	}, groupCounterFactory, testutil.TestLogger(t))
	require.NoError(t, err)

	states, err := runner.Run(context.Background(), src)
	require.NoError(t, err)
	defer release(states)

	assert.Equal(t, want, collect(t, states))
	stats := runner.Stats()
	assert.Greater(t, stats.Spills, int64(1))
	assert.Greater(t, stats.SpilledBytes, int64(0))
}

func TestSpilledRunsKeepFirstSeenOrder(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	src, _ := chunked(t, mem, []interface{}{"c", "a", "c", "b", "a", "d", "c", "e"}, 2)

	manager, err := spill.NewManager(spill.Config{Directory: t.TempDir()}, nil)
	require.NoError(t, err)
	defer manager.Close()

	runner, err := New(Config{
		Kind:            bytesmap.Utf8,
		Partitions:      1,
		PartitionBudget: 1,
		Spill:           manager,
		Allocator:       mem,
	}, groupCounterFactory, testutil.TestLogger(t))
	require.NoError(t, err)

	states, err := runner.Run(context.Background(), src)
	require.NoError(t, err)
	defer release(states)

	require.Len(t, states, 1)
	assert.Equal(t, []interface{}{"c", "a", "b", "d", "e"}, testutil.Values(t, states[0].Column(0)))
	assert.Equal(t, []int64{3, 2, 1, 1, 1}, states[0].Column(1).(*array.Int64).Int64Values())
}

func TestNullsGoToFirstPartition(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	src, _ := chunked(t, mem, []interface{}{nil, "x", "y", nil, "z", "w", nil}, 3)

	runner, err := New(Config{Kind: bytesmap.Utf8, Partitions: 5, Allocator: mem},
		groupCounterFactory, testutil.TestLogger(t))
	require.NoError(t, err)

	states, err := runner.Run(context.Background(), src)
	require.NoError(t, err)
	defer release(states)

	for i, rec := range states {
		nulls := rec.Column(0).NullN()
		if i == 0 {
			assert.Equal(t, 1, nulls)
			continue
		}
		assert.Zero(t, nulls, "partition %d", i)
	}
	assert.Equal(t, int64(3), collect(t, states)[nil])
}

func TestRunCanceled(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	src, _ := chunked(t, mem, sampleRows(500, 20), 10)

	runner, err := New(Config{Kind: bytesmap.Utf8, Partitions: 2, Allocator: mem},
		groupCounterFactory, testutil.TestLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	states, err := runner.Run(ctx, src)
	require.Error(t, err)
	assert.Nil(t, states)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCanceled))
}

func TestRunTypeMismatch(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	b := array.NewInt64Builder(mem)
	b.AppendValues([]int64{1, 2, 3}, nil)
	src := &sliceReader{chunks: []arrow.Array{b.NewArray()}, dtype: arrow.PrimitiveTypes.Int64}
	b.Release()
	defer src.Close()

	runner, err := New(Config{Kind: bytesmap.Utf8, Partitions: 2, Allocator: mem},
		groupCounterFactory, testutil.TestLogger(t))
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMismatch))
}

func TestBinaryInputAsText(t *testing.T) {
	for _, partitions := range []int{1, 3} {
		t.Run(fmt.Sprintf("partitions=%d", partitions), func(t *testing.T) {
			mem := testutil.CheckedAllocator(t)
			src := &sliceReader{dtype: arrow.BinaryTypes.Binary, chunks: []arrow.Array{
				testutil.BuildArray(t, mem, arrow.BinaryTypes.Binary, "a", "b", nil, "a"),
			}}
			defer src.Close()

			runner, err := New(Config{Kind: bytesmap.Utf8, Partitions: partitions, Allocator: mem},
				groupCounterFactory, testutil.TestLogger(t))
			require.NoError(t, err)
			states, err := runner.Run(context.Background(), src)
			require.NoError(t, err)
			var groups int64
			for _, rec := range states {
				assert.Equal(t, arrow.BinaryTypes.String, rec.Column(0).DataType())
				groups += rec.NumRows()
				rec.Release()
			}
			assert.Equal(t, int64(3), groups)

			bad := &sliceReader{dtype: arrow.BinaryTypes.Binary, chunks: []arrow.Array{
				testutil.BuildArray(t, mem, arrow.BinaryTypes.Binary, "a", []byte{0xff, 0xfe}),
			}}
			defer bad.Close()
			runner, err = New(Config{Kind: bytesmap.Utf8, Partitions: partitions, Allocator: mem},
				groupCounterFactory, testutil.TestLogger(t))
			require.NoError(t, err)
			_, err = runner.Run(context.Background(), bad)
			assert.True(t, errors.IsType(err, errors.ErrorTypeData))
		})
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = New(Config{Partitions: -1}, groupCounterFactory, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = New(Config{PartitionBudget: 1 << 20}, groupCounterFactory, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	runner, err := New(Config{}, groupCounterFactory, nil)
	require.NoError(t, err)
	assert.Greater(t, runner.config.Partitions, 0)
	assert.Equal(t, "aggregate", runner.config.Operator)
}

func TestPartitionOfIsStable(t *testing.T) {
	for _, v := range []string{"", "a", "abcdefgh", "abcdefghi", "some longer value"} {
		p := partitionOf([]byte(v), 7)
		assert.Less(t, p, uint32(7))
		assert.Equal(t, p, partitionOf([]byte(v), 7))
	}
}

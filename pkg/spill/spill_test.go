package spill

import (
	"context"
	"os"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bytesmap/pkg/aggregate"
	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/compression"
	"github.com/ajitpratap0/bytesmap/pkg/testutil"
)

func TestWriteRead(t *testing.T) {
	for _, algorithm := range []compression.Algorithm{compression.None, compression.Zstd, compression.LZ4, compression.S2, compression.Snappy} {
		t.Run(string(algorithm), func(t *testing.T) {
			mem := testutil.CheckedAllocator(t)
			ctx, cancel := testutil.TestContext(t)
			defer cancel()

			m, err := NewManager(Config{
				Directory:   t.TempDir(),
				Compression: compression.Config{Algorithm: algorithm, Level: compression.Fastest},
				Allocator:   mem,
			}, testutil.TestLogger(t))
			require.NoError(t, err)
			defer m.Close()

			g := aggregate.NewGroupCounter[int32](bytesmap.Utf8)
			require.NoError(t, g.Update(testutil.Strings(t, "a", "b", "a", nil)))
			state, err := g.State()
			require.NoError(t, err)
			defer state.Release()

			run, err := m.Write(ctx, state)
			require.NoError(t, err)
			assert.Equal(t, int64(3), run.Rows)
			assert.Greater(t, run.Bytes, int64(0))

			info, err := os.Stat(run.Path)
			require.NoError(t, err)
			assert.Equal(t, run.Bytes, info.Size())

			var read int
			err = m.Read(ctx, run, func(rec arrow.Record) error {
				read++
				assert.True(t, rec.Schema().Equal(state.Schema()))
				assert.Equal(t, []interface{}{"a", "b", nil}, testutil.Values(t, rec.Column(0)))
				return g.Merge(rec)
			})
			require.NoError(t, err)
			assert.Equal(t, 1, read)

			got, err := g.Lookup(testutil.Strings(t, "a", "b", nil))
			require.NoError(t, err)
			assert.Equal(t, []int64{2, 1, 1}, got)

			require.NoError(t, m.Remove(run))
			_, err = os.Stat(run.Path)
			assert.True(t, os.IsNotExist(err))

			final, err := g.State()
			require.NoError(t, err)
			final.Release()
		})
	}
}

func TestCloseRemovesDirectory(t *testing.T) {
	m, err := NewManager(Config{Directory: t.TempDir()}, nil)
	require.NoError(t, err)

	acc := aggregate.NewCountDistinct[int64](bytesmap.Utf8)
	require.NoError(t, acc.Update(testutil.Strings(t, "x")))
	state, err := acc.State()
	require.NoError(t, err)
	defer state.Release()

	_, err = m.Write(context.Background(), state)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	_, err = os.Stat(m.Dir())
	assert.True(t, os.IsNotExist(err))

	_, err = m.Write(context.Background(), state)
	assert.Error(t, err)
	assert.NoError(t, m.Close())
}

func TestWriteCanceled(t *testing.T) {
	m, err := NewManager(Config{Directory: t.TempDir()}, nil)
	require.NoError(t, err)
	defer m.Close()

	acc := aggregate.NewCountDistinct[int32](bytesmap.Utf8)
	state, err := acc.State()
	require.NoError(t, err)
	defer state.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Write(ctx, state)
	assert.Error(t, err)
}

package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

func TestCodecRoundTrip(t *testing.T) {
	original := []byte(strings.Repeat("spill run payload with repeated content ", 2000))

	for _, algorithm := range []Algorithm{None, Snappy, S2, LZ4, Zstd} {
		for _, level := range []Level{Fastest, Default, Better, Best} {
			t.Run(string(algorithm), func(t *testing.T) {
				codec, err := NewCodec(&Config{Algorithm: algorithm, Level: level})
				require.NoError(t, err)
				assert.Equal(t, algorithm, codec.Algorithm())
				assert.Equal(t, level, codec.Level())

				var buf bytes.Buffer
				w, err := codec.NewWriter(&buf)
				require.NoError(t, err)
				_, err = w.Write(original)
				require.NoError(t, err)
				require.NoError(t, w.Close())

				if algorithm != None {
					assert.Less(t, buf.Len(), len(original))
				}

				r, err := codec.NewReader(&buf)
				require.NoError(t, err)
				decompressed, err := io.ReadAll(r)
				require.NoError(t, err)
				require.NoError(t, r.Close())
				assert.Equal(t, original, decompressed)
			})
		}
	}
}

func TestNewCodecDefaults(t *testing.T) {
	codec, err := NewCodec(nil)
	require.NoError(t, err)
	assert.Equal(t, Zstd, codec.Algorithm())

	codec, err = NewCodec(&Config{})
	require.NoError(t, err)
	assert.Equal(t, None, codec.Algorithm())

	_, err = NewCodec(&Config{Algorithm: "brotli"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestParse(t *testing.T) {
	a, err := ParseAlgorithm("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	_, err = ParseAlgorithm("gzip")
	assert.Error(t, err)

	l, err := ParseLevel("best")
	require.NoError(t, err)
	assert.Equal(t, Best, l)

	l, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, Default, l)

	_, err = ParseLevel("max")
	assert.Error(t, err)
}

package columnar

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
	"github.com/ajitpratap0/bytesmap/pkg/testutil"
)

var resultSchema = arrow.NewSchema([]arrow.Field{
	{Name: "value", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "count", Type: arrow.PrimitiveTypes.Int64},
}, nil)

func resultRecord(t *testing.T) arrow.Record {
	t.Helper()
	values := testutil.Strings(t, "a", "b", nil, "a")
	defer values.Release()

	bldr := array.NewInt64Builder(memory.DefaultAllocator)
	defer bldr.Release()
	bldr.AppendValues([]int64{3, 1, 2, 3}, nil)
	counts := bldr.NewArray()
	defer counts.Release()

	return array.NewRecord(resultSchema, []arrow.Array{values, counts}, 4)
}

// readAll drains r and returns the decoded values and the chunk count.
func readAll(t *testing.T, r Reader) ([]interface{}, int) {
	t.Helper()
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	var (
		out    []interface{}
		chunks int
	)
	for {
		arr, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.True(t, arrow.TypeEqual(r.DataType(), arr.DataType()), "chunk type %s, reader type %s", arr.DataType(), r.DataType())
		out = append(out, testutil.Values(t, arr)...)
		chunks++
		arr.Release()
	}
	return out, chunks
}

func TestWriteThenRead(t *testing.T) {
	for _, format := range []Format{CSV, JSONL, Avro, Arrow, Parquet} {
		t.Run(string(format), func(t *testing.T) {
			rec := resultRecord(t)
			defer rec.Release()

			path := filepath.Join(t.TempDir(), "result"+GetFormatInfo(format).FileExtension)
			w, err := Create(path, &WriterConfig{Format: format, Schema: resultSchema, Compression: "snappy"})
			require.NoError(t, err)
			assert.Equal(t, format, w.Format())
			require.NoError(t, w.Write(rec))
			assert.Equal(t, int64(4), w.RowsWritten())
			require.NoError(t, w.Close())

			r, err := Open(path, &ReaderConfig{
				Format:     format,
				Column:     "value",
				Kind:       bytesmap.Utf8,
				BatchSize:  3,
				NullValues: []string{""},
			})
			require.NoError(t, err)
			defer func() { assert.NoError(t, r.Close()) }()
			assert.Equal(t, format, r.Format())

			values, chunks := readAll(t, r)
			assert.Equal(t, []interface{}{"a", "b", nil, "a"}, values)
			assert.Equal(t, 2, chunks)
		})
	}
}

func TestReadAsBinary(t *testing.T) {
	rec := resultRecord(t)
	defer rec.Release()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, &WriterConfig{Format: Arrow, Schema: resultSchema, Compression: "zstd"})
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	// bytes.Buffer has no random access; the reader buffers it
	r, err := NewReader(&buf, &ReaderConfig{Format: Arrow, Column: "value", Kind: bytesmap.Binary})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, arrow.BinaryTypes.Binary, r.DataType())
	values, chunks := readAll(t, r)
	assert.Equal(t, []interface{}{"a", "b", nil, "a"}, values)
	assert.Equal(t, 1, chunks)
}

func TestCSVKeepsValuesAsText(t *testing.T) {
	input := "id,name\n1,007\n2,\n3,NA\n4,true\n"

	r, err := NewReader(strings.NewReader(input), &ReaderConfig{Format: CSV, Column: "name", NullValues: []string{"NA"}})
	require.NoError(t, err)
	defer r.Close()

	values, _ := readAll(t, r)
	assert.Equal(t, []interface{}{"007", "", nil, "true"}, values)
}

func TestJSONLValues(t *testing.T) {
	input := `{"k": "x"}
{"k": null}
{"other": 1}
{"k": 12.50}
{"k": false}
{"k": {"b": 1, "a": [1, 2]}}
`
	r, err := NewReader(strings.NewReader(input), &ReaderConfig{Format: JSONL, Column: "k"})
	require.NoError(t, err)
	defer r.Close()

	values, chunks := readAll(t, r)
	assert.Equal(t, []interface{}{"x", nil, nil, "12.50", "false", `{"a":[1,2],"b":1}`}, values)
	assert.Equal(t, 1, chunks)
}

func TestJSONLMalformed(t *testing.T) {
	r, err := NewReader(strings.NewReader("{\"k\": \"x\"}\n{not json\n"), &ReaderConfig{Format: JSONL, Column: "k"})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestMissingColumn(t *testing.T) {
	rec := resultRecord(t)
	defer rec.Release()

	for _, format := range []Format{Arrow, Parquet} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, &WriterConfig{Format: format, Schema: resultSchema})
			require.NoError(t, err)
			require.NoError(t, w.Write(rec))
			require.NoError(t, w.Close())

			_, err = NewReader(bytes.NewReader(buf.Bytes()), &ReaderConfig{Format: format, Column: "missing"})
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func TestConform(t *testing.T) {
	mem := testutil.CheckedAllocator(t)

	str := testutil.BuildArray(t, mem, arrow.BinaryTypes.LargeString, "x", nil, "yy")
	defer str.Release()

	bin, err := Conform(str, bytesmap.Binary)
	require.NoError(t, err)
	defer bin.Release()
	assert.Equal(t, arrow.BinaryTypes.LargeBinary, bin.DataType())
	assert.Equal(t, []interface{}{"x", nil, "yy"}, testutil.Values(t, bin))
	// same buffers, no copy
	assert.Same(t, str.Data().Buffers()[2], bin.Data().Buffers()[2])

	same, err := Conform(str, bytesmap.Utf8)
	require.NoError(t, err)
	defer same.Release()
	assert.Equal(t, arrow.BinaryTypes.LargeString, same.DataType())

	ints := array.NewInt64Builder(mem)
	defer ints.Release()
	ints.Append(1)
	arr := ints.NewArray()
	defer arr.Release()
	_, err = Conform(arr, bytesmap.Utf8)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMismatch))
}

func TestConfigValidation(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), &ReaderConfig{Format: CSV})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = NewReader(strings.NewReader(""), &ReaderConfig{Format: "orc", Column: "v"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = NewWriter(io.Discard, &WriterConfig{Format: CSV})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = Open(filepath.Join(t.TempDir(), "nope.csv"), &ReaderConfig{Format: CSV, Column: "v"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	assert.Nil(t, GetFormatInfo("orc"))
	assert.True(t, GetFormatInfo(Parquet).Columnar)
}

func TestCreateRemovesFileOnBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	_, err := Create(path, &WriterConfig{Format: CSV})
	require.Error(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestBinaryReadAsTextMustBeUTF8(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	bin := testutil.BuildArray(t, mem, arrow.BinaryTypes.Binary, "ok", nil, []byte{0xff, 0xfe})
	defer bin.Release()

	_, err := Conform(bin, bytesmap.Utf8)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 2, e.Details["row"])

	// rows outside the slice are not checked
	head := array.NewSlice(bin, 0, 2)
	defer head.Release()
	text, err := Conform(head, bytesmap.Utf8)
	require.NoError(t, err)
	defer text.Release()
	assert.Equal(t, arrow.BinaryTypes.String, text.DataType())
	assert.Equal(t, []interface{}{"ok", nil}, testutil.Values(t, text))

	raw, err := Conform(bin, bytesmap.Binary)
	require.NoError(t, err)
	raw.Release()
}

func TestArrowBinaryColumnReadAsText(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "payload", Type: arrow.BinaryTypes.Binary, Nullable: true}}, nil)
	col := testutil.BuildArray(t, memory.DefaultAllocator, arrow.BinaryTypes.Binary, []byte{0xff, 0xfe})
	defer col.Release()
	rec := array.NewRecord(schema, []arrow.Array{col}, 1)
	defer rec.Release()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, &WriterConfig{Format: Arrow, Schema: schema})
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), &ReaderConfig{Format: Arrow, Column: "payload", Kind: bytesmap.Utf8})
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	_, err = r.Next(ctx)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestChunkBuilderRejectsInvalidText(t *testing.T) {
	mem := testutil.CheckedAllocator(t)

	text := newChunkBuilder(mem, bytesmap.Utf8, []string{"NA"})
	defer text.release()
	require.NoError(t, text.append([]byte("héllo")))
	require.NoError(t, text.append([]byte("NA")))
	err := text.append([]byte{0xff, 0xfe})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Equal(t, 2, text.len())

	bin := newChunkBuilder(mem, bytesmap.Binary, nil)
	defer bin.release()
	require.NoError(t, bin.append([]byte{0xff, 0xfe}))
	arr := bin.finish()
	defer arr.Release()
	assert.Equal(t, arrow.BinaryTypes.Binary, arr.DataType())
}

package columnar

import (
	"bytes"
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// arrowReader implements Reader for Arrow IPC files. Streams without a
// file footer are accepted as well.
type arrowReader struct {
	file   *ipc.FileReader
	stream *ipc.Reader
	column string
	kind   bytesmap.OutputType
	size   int

	cur arrow.Array
	pos int
}

func newArrowReader(r io.Reader, config *ReaderConfig) (*arrowReader, error) {
	ar := &arrowReader{column: config.Column, kind: config.Kind, size: config.BatchSize}

	src, ok := r.(ipc.ReadAtSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read arrow input")
		}
		src = bytes.NewReader(data)
	}

	file, err := ipc.NewFileReader(src, ipc.WithAllocator(config.Allocator))
	if err == nil {
		ar.file = file
	} else {
		if _, serr := src.Seek(0, io.SeekStart); serr != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open arrow file")
		}
		stream, serr := ipc.NewReader(src, ipc.WithAllocator(config.Allocator))
		if serr != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "input is neither an arrow file nor an arrow stream")
		}
		ar.stream = stream
	}

	if schema := ar.schema(); !schema.HasField(ar.column) {
		ar.Close()
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %q not found in arrow schema", ar.column).
			WithDetail("schema", schema.String())
	}
	return ar, nil
}

func (ar *arrowReader) schema() *arrow.Schema {
	if ar.file != nil {
		return ar.file.Schema()
	}
	return ar.stream.Schema()
}

func (ar *arrowReader) readRecord() (arrow.Record, error) {
	if ar.file != nil {
		return ar.file.Read()
	}
	if !ar.stream.Next() {
		if err := ar.stream.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return ar.stream.Record(), nil
}

func (ar *arrowReader) Next(ctx context.Context) (arrow.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCanceled, "arrow read canceled")
	}
	for ar.cur == nil || ar.pos >= ar.cur.Len() {
		if ar.cur != nil {
			ar.cur.Release()
			ar.cur = nil
		}
		rec, err := ar.readRecord()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read arrow record")
		}
		col, err := Conform(rec.Column(rec.Schema().FieldIndices(ar.column)[0]), ar.kind)
		if err != nil {
			return nil, err
		}
		ar.cur, ar.pos = col, 0
	}

	end := ar.pos + ar.size
	if end > ar.cur.Len() {
		end = ar.cur.Len()
	}
	out := array.NewSlice(ar.cur, int64(ar.pos), int64(end))
	ar.pos = end
	return out, nil
}

func (ar *arrowReader) DataType() arrow.DataType {
	schema := ar.schema()
	dt := schema.Field(schema.FieldIndices(ar.column)[0]).Type
	switch dt.ID() {
	case arrow.LARGE_STRING, arrow.LARGE_BINARY:
		return bytesmap.DataTypeOf[int64](ar.kind)
	default:
		return bytesmap.DataTypeOf[int32](ar.kind)
	}
}

func (ar *arrowReader) Close() error {
	if ar.cur != nil {
		ar.cur.Release()
		ar.cur = nil
	}
	if ar.stream != nil {
		ar.stream.Release()
		return nil
	}
	if err := ar.file.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close arrow file")
	}
	return nil
}

func (ar *arrowReader) Format() Format {
	return Arrow
}

// arrowWriter implements Writer for Arrow IPC files
type arrowWriter struct {
	sink io.Writer
	w    *ipc.FileWriter
	rows int64
}

func newArrowWriter(w io.Writer, config *WriterConfig) (*arrowWriter, error) {
	opts := []ipc.Option{ipc.WithSchema(config.Schema), ipc.WithAllocator(config.Allocator)}
	switch config.Compression {
	case "zstd":
		opts = append(opts, ipc.WithZstd())
	case "lz4":
		opts = append(opts, ipc.WithLZ4())
	}
	fw, err := ipc.NewFileWriter(w, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create arrow writer")
	}
	return &arrowWriter{sink: w, w: fw}, nil
}

func (aw *arrowWriter) Write(rec arrow.Record) error {
	if err := aw.w.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write arrow record")
	}
	aw.rows += rec.NumRows()
	return nil
}

func (aw *arrowWriter) Close() error {
	if err := aw.w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write arrow footer")
	}
	return closeSink(aw.sink)
}

func (aw *arrowWriter) Format() Format {
	return Arrow
}

func (aw *arrowWriter) RowsWritten() int64 {
	return aw.rows
}

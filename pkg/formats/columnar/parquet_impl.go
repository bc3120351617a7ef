package columnar

import (
	"bytes"
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// parquetReader implements Reader for Parquet files. Only the leaf column
// holding the requested field is decoded.
type parquetReader struct {
	records pqarrow.RecordReader
	dt      arrow.DataType
	kind    bytesmap.OutputType
}

func newParquetReader(r io.Reader, config *ReaderConfig) (*parquetReader, error) {
	src, ok := r.(parquet.ReaderAtSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read parquet input")
		}
		src = bytes.NewReader(data)
	}

	fr, err := file.NewParquetReader(src, file.WithReadProps(parquet.NewReaderProperties(config.Allocator)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open parquet file")
	}

	idx := fr.MetaData().Schema.ColumnIndexByName(config.Column)
	if idx < 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %q not found in parquet schema", config.Column)
	}

	arrowReader, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{BatchSize: int64(config.BatchSize)}, config.Allocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to create parquet arrow reader")
	}
	records, err := arrowReader.GetRecordReader(context.Background(), []int{idx}, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to create parquet record reader").
			WithDetail("column", config.Column)
	}

	pr := &parquetReader{records: records, kind: config.Kind}
	switch records.Schema().Field(0).Type.ID() {
	case arrow.LARGE_STRING, arrow.LARGE_BINARY:
		pr.dt = bytesmap.DataTypeOf[int64](config.Kind)
	default:
		pr.dt = bytesmap.DataTypeOf[int32](config.Kind)
	}
	return pr, nil
}

func (pr *parquetReader) Next(ctx context.Context) (arrow.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCanceled, "parquet read canceled")
	}
	if !pr.records.Next() {
		if err := pr.records.Err(); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read parquet column")
		}
		return nil, io.EOF
	}
	return Conform(pr.records.Record().Column(0), pr.kind)
}

func (pr *parquetReader) DataType() arrow.DataType {
	return pr.dt
}

// Close releases decoding state. The source is left open: Open closes the
// file it created.
func (pr *parquetReader) Close() error {
	pr.records.Release()
	return nil
}

func (pr *parquetReader) Format() Format {
	return Parquet
}

// parquetWriter implements Writer for Parquet files
type parquetWriter struct {
	fw   *pqarrow.FileWriter
	rows int64
}

func newParquetWriter(w io.Writer, config *WriterConfig) (*parquetWriter, error) {
	props := parquet.NewWriterProperties(
		parquet.WithCompression(getParquetCompression(config.Compression)),
		parquet.WithAllocator(config.Allocator),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(config.Allocator),
		pqarrow.WithStoreSchema(),
	)
	fw, err := pqarrow.NewFileWriter(config.Schema, w, props, arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create parquet writer")
	}
	return &parquetWriter{fw: fw}, nil
}

func (pw *parquetWriter) Write(rec arrow.Record) error {
	if err := pw.fw.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write parquet row group")
	}
	pw.rows += rec.NumRows()
	return nil
}

// Close writes the footer. The parquet writer closes the sink itself.
func (pw *parquetWriter) Close() error {
	if err := pw.fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close parquet writer")
	}
	return nil
}

func (pw *parquetWriter) Format() Format {
	return Parquet
}

func (pw *parquetWriter) RowsWritten() int64 {
	return pw.rows
}

func getParquetCompression(compression string) compress.Compression {
	switch compression {
	case "snappy":
		return compress.Codecs.Snappy
	case "zstd":
		return compress.Codecs.Zstd
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	default:
		return compress.Codecs.Uncompressed
	}
}

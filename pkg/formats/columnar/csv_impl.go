package columnar

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// csvReader implements Reader for CSV files with a header row
type csvReader struct {
	r      *csv.Reader
	column string
	kind   bytesmap.OutputType
}

func newCSVReader(r io.Reader, config *ReaderConfig) (*csvReader, error) {
	opts := []csv.Option{
		csv.WithHeader(true),
		csv.WithChunk(config.BatchSize),
		csv.WithAllocator(config.Allocator),
		csv.WithIncludeColumns([]string{config.Column}),
		// never infer: the column is read as text whatever it looks like
		csv.WithColumnTypes(map[string]arrow.DataType{config.Column: arrow.BinaryTypes.String}),
	}
	if len(config.NullValues) > 0 {
		opts = append(opts, csv.WithNullReader(true, config.NullValues...))
	}
	return &csvReader{
		r:      csv.NewInferringReader(r, opts...),
		column: config.Column,
		kind:   config.Kind,
	}, nil
}

func (cr *csvReader) Next(ctx context.Context) (arrow.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCanceled, "csv read canceled")
	}
	if !cr.r.Next() {
		if err := cr.r.Err(); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read csv")
		}
		return nil, io.EOF
	}

	rec := cr.r.Record()
	idx := rec.Schema().FieldIndices(cr.column)
	if len(idx) == 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %q not found in csv header", cr.column)
	}
	return Conform(rec.Column(idx[0]), cr.kind)
}

func (cr *csvReader) DataType() arrow.DataType {
	return bytesmap.DataTypeOf[int32](cr.kind)
}

func (cr *csvReader) Close() error {
	cr.r.Release()
	return nil
}

func (cr *csvReader) Format() Format {
	return CSV
}

// csvWriter implements Writer for CSV files. Nulls are written as empty
// fields and binary values are base64 encoded.
type csvWriter struct {
	sink io.Writer
	w    *csv.Writer
	rows int64
}

func newCSVWriter(w io.Writer, config *WriterConfig) *csvWriter {
	return &csvWriter{
		sink: w,
		w:    csv.NewWriter(w, config.Schema, csv.WithHeader(true), csv.WithNullWriter("")),
	}
}

func (cw *csvWriter) Write(rec arrow.Record) error {
	if err := cw.w.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write csv")
	}
	cw.rows += rec.NumRows()
	return nil
}

func (cw *csvWriter) Close() error {
	if err := cw.w.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush csv")
	}
	if err := cw.w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write csv")
	}
	return closeSink(cw.sink)
}

func (cw *csvWriter) Format() Format {
	return CSV
}

func (cw *csvWriter) RowsWritten() int64 {
	return cw.rows
}

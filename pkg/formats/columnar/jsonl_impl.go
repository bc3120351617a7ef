package columnar

import (
	"bufio"
	"context"
	"io"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/goccy/go-json"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// jsonlReader implements Reader for newline delimited JSON objects. A
// missing key or JSON null reads as null; numbers, booleans and nested
// values read as their JSON text.
type jsonlReader struct {
	dec    *json.Decoder
	column string
	chunk  *chunkBuilder
	size   int
	line   int64
	done   bool
}

func newJSONLReader(r io.Reader, config *ReaderConfig) *jsonlReader {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()
	return &jsonlReader{
		dec:    dec,
		column: config.Column,
		chunk:  newChunkBuilder(config.Allocator, config.Kind, config.NullValues),
		size:   config.BatchSize,
	}
}

func (jr *jsonlReader) Next(ctx context.Context) (arrow.Array, error) {
	if jr.done {
		return nil, io.EOF
	}
	for jr.chunk.len() < jr.size {
		if jr.line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeCanceled, "jsonl read canceled")
			}
		}

		var row map[string]interface{}
		if err := jr.dec.Decode(&row); err != nil {
			if err == io.EOF {
				jr.done = true
				break
			}
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode jsonl").
				WithDetail("line", jr.line+1)
		}
		jr.line++
		if err := jr.appendValue(row[jr.column]); err != nil {
			return nil, err
		}
	}
	if jr.chunk.len() == 0 {
		return nil, io.EOF
	}
	return jr.chunk.finish(), nil
}

func (jr *jsonlReader) appendValue(v interface{}) error {
	var err error
	switch v := v.(type) {
	case nil:
		jr.chunk.appendNull()
	case string:
		err = jr.chunk.append([]byte(v))
	case json.Number:
		err = jr.chunk.append([]byte(v.String()))
	case bool:
		err = jr.chunk.append([]byte(strconv.FormatBool(v)))
	default:
		b, merr := json.Marshal(v)
		if merr != nil {
			return errors.Wrap(merr, errors.ErrorTypeData, "failed to encode nested jsonl value").
				WithDetail("line", jr.line)
		}
		err = jr.chunk.append(b)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "jsonl value rejected").WithDetail("line", jr.line)
	}
	return nil
}

func (jr *jsonlReader) DataType() arrow.DataType {
	return jr.chunk.dataType()
}

func (jr *jsonlReader) Close() error {
	jr.chunk.release()
	return nil
}

func (jr *jsonlReader) Format() Format {
	return JSONL
}

// jsonlWriter implements Writer, one JSON object per row
type jsonlWriter struct {
	sink   io.Writer
	buf    *bufio.Writer
	enc    *json.Encoder
	schema *arrow.Schema
	rows   int64
}

func newJSONLWriter(w io.Writer, config *WriterConfig) *jsonlWriter {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &jsonlWriter{sink: w, buf: buf, enc: enc, schema: config.Schema}
}

func (jw *jsonlWriter) Write(rec arrow.Record) error {
	if !rec.Schema().Equal(jw.schema) {
		return errors.New(errors.ErrorTypeValidation, "record schema does not match writer schema").
			WithDetail("record", rec.Schema().String())
	}
	fields := rec.Schema().Fields()
	row := make(map[string]interface{}, len(fields))
	for i := 0; i < int(rec.NumRows()); i++ {
		for j, f := range fields {
			row[f.Name] = rec.Column(j).GetOneForMarshal(i)
		}
		if err := jw.enc.Encode(row); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write jsonl")
		}
	}
	jw.rows += rec.NumRows()
	return nil
}

func (jw *jsonlWriter) Close() error {
	if err := jw.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush jsonl")
	}
	return closeSink(jw.sink)
}

func (jw *jsonlWriter) Format() Format {
	return JSONL
}

func (jw *jsonlWriter) RowsWritten() int64 {
	return jw.rows
}

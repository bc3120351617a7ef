package columnar

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// avroReader implements Reader for Avro object container files. The column
// must be a string or bytes field, optionally in a union with null.
type avroReader struct {
	ocf    *goavro.OCFReader
	column string
	chunk  *chunkBuilder
	size   int
	row    int64
}

func newAvroReader(r io.Reader, config *ReaderConfig) (*avroReader, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open avro container")
	}
	return &avroReader{
		ocf:    ocf,
		column: config.Column,
		chunk:  newChunkBuilder(config.Allocator, config.Kind, config.NullValues),
		size:   config.BatchSize,
	}, nil
}

func (ar *avroReader) Next(ctx context.Context) (arrow.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCanceled, "avro read canceled")
	}
	for ar.chunk.len() < ar.size && ar.ocf.Scan() {
		datum, err := ar.ocf.Read()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read avro record").
				WithDetail("row", ar.row)
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeTypeMismatch, "avro datum is %T, want a record", datum)
		}
		if err := ar.appendValue(rec[ar.column]); err != nil {
			return nil, err
		}
		ar.row++
	}
	if err := ar.ocf.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read avro container")
	}
	if ar.chunk.len() == 0 {
		return nil, io.EOF
	}
	return ar.chunk.finish(), nil
}

func (ar *avroReader) appendValue(v interface{}) error {
	// a union arrives as a single entry map keyed by the branch name
	if u, ok := v.(map[string]interface{}); ok && len(u) == 1 {
		for _, inner := range u {
			v = inner
		}
	}
	var err error
	switch v := v.(type) {
	case nil:
		ar.chunk.appendNull()
	case string:
		err = ar.chunk.append([]byte(v))
	case []byte:
		err = ar.chunk.append(v)
	default:
		return errors.Newf(errors.ErrorTypeTypeMismatch, "avro field %q holds %T, want string or bytes", ar.column, v).
			WithDetail("row", ar.row)
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeData, "avro field %q rejected", ar.column).WithDetail("row", ar.row)
	}
	return nil
}

func (ar *avroReader) DataType() arrow.DataType {
	return ar.chunk.dataType()
}

func (ar *avroReader) Close() error {
	ar.chunk.release()
	return nil
}

func (ar *avroReader) Format() Format {
	return Avro
}

// avroWriter implements Writer for Avro object container files
type avroWriter struct {
	sink     io.Writer
	ocf      *goavro.OCFWriter
	branches []string
	nullable []bool
	schema   *arrow.Schema
	rows     int64
}

func newAvroWriter(w io.Writer, config *WriterConfig) (*avroWriter, error) {
	avroSchema, branches, err := arrowToAvroSchema(config.Schema)
	if err != nil {
		return nil, err
	}
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create avro codec")
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: getAvroCompression(config.Compression),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create avro writer")
	}

	nullable := make([]bool, config.Schema.NumFields())
	for i, f := range config.Schema.Fields() {
		nullable[i] = f.Nullable
	}
	return &avroWriter{
		sink:     w,
		ocf:      ocf,
		branches: branches,
		nullable: nullable,
		schema:   config.Schema,
	}, nil
}

func (aw *avroWriter) Write(rec arrow.Record) error {
	if !rec.Schema().Equal(aw.schema) {
		return errors.New(errors.ErrorTypeValidation, "record schema does not match writer schema").
			WithDetail("record", rec.Schema().String())
	}
	fields := rec.Schema().Fields()
	rows := make([]interface{}, 0, rec.NumRows())
	for i := 0; i < int(rec.NumRows()); i++ {
		row := make(map[string]interface{}, len(fields))
		for j, f := range fields {
			v := avroValue(rec.Column(j), i)
			if aw.nullable[j] && v != nil {
				v = goavro.Union(aw.branches[j], v)
			}
			row[f.Name] = v
		}
		rows = append(rows, row)
	}
	if err := aw.ocf.Append(rows); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write avro block")
	}
	aw.rows += rec.NumRows()
	return nil
}

func (aw *avroWriter) Close() error {
	return closeSink(aw.sink)
}

func (aw *avroWriter) Format() Format {
	return Avro
}

func (aw *avroWriter) RowsWritten() int64 {
	return aw.rows
}

func avroValue(col arrow.Array, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}
	switch c := col.(type) {
	case *array.String:
		return c.Value(i)
	case *array.LargeString:
		return c.Value(i)
	case *array.Binary:
		return c.Value(i)
	case *array.LargeBinary:
		return c.Value(i)
	case *array.Int64:
		return c.Value(i)
	default:
		return col.ValueStr(i)
	}
}

type avroField struct {
	Name string      `json:"name"`
	Type interface{} `json:"type"`
}

type avroRecord struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Fields []avroField `json:"fields"`
}

// arrowToAvroSchema returns the avro schema for a result record and the
// union branch name of each field.
func arrowToAvroSchema(schema *arrow.Schema) (string, []string, error) {
	rec := avroRecord{Type: "record", Name: "result"}
	branches := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		var t string
		switch f.Type.ID() {
		case arrow.STRING, arrow.LARGE_STRING:
			t = "string"
		case arrow.BINARY, arrow.LARGE_BINARY:
			t = "bytes"
		case arrow.INT64:
			t = "long"
		default:
			return "", nil, errors.Newf(errors.ErrorTypeTypeMismatch, "no avro type for field %s of type %s", f.Name, f.Type)
		}
		branches[i] = t
		if f.Nullable {
			rec.Fields = append(rec.Fields, avroField{Name: f.Name, Type: []string{"null", t}})
		} else {
			rec.Fields = append(rec.Fields, avroField{Name: f.Name, Type: t})
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode avro schema")
	}
	return string(b), branches, nil
}

func getAvroCompression(compression string) string {
	switch compression {
	case "snappy":
		return goavro.CompressionSnappyLabel
	case "deflate", "gzip":
		return goavro.CompressionDeflateLabel
	default:
		return goavro.CompressionNullLabel
	}
}

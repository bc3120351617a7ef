// Package columnar reads a single byte column out of data files as Arrow
// arrays and writes aggregation results back out as Arrow records.
package columnar

import (
	"context"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
	"github.com/ajitpratap0/bytesmap/pkg/mmap"
)

// Format represents a data file format
type Format string

const (
	// CSV is comma separated text with a header row
	CSV Format = "csv"
	// JSONL is newline delimited JSON objects
	JSONL Format = "jsonl"
	// Avro is an Apache Avro object container file
	Avro Format = "avro"
	// Arrow is the Apache Arrow IPC file format
	Arrow Format = "arrow"
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
)

// Reader streams one column of a file as byte arrays.
type Reader interface {
	// Next returns the next chunk of the column, or io.EOF when the input
	// is exhausted. The caller releases the returned array.
	Next(ctx context.Context) (arrow.Array, error)
	// DataType is the type of the arrays returned by Next
	DataType() arrow.DataType
	// Close closes the reader
	Close() error
	// Format returns the file format
	Format() Format
}

// Writer writes result records.
type Writer interface {
	// Write writes one record; the writer does not keep a reference
	Write(rec arrow.Record) error
	// Close flushes buffered data and closes the underlying sink
	Close() error
	// Format returns the file format
	Format() Format
	// RowsWritten returns rows written
	RowsWritten() int64
}

// ReaderConfig configures readers
type ReaderConfig struct {
	Format Format
	// Column is the name of the column to read
	Column string
	// Kind selects Utf8 or Binary output arrays
	Kind      bytesmap.OutputType
	BatchSize int
	// NullValues are strings read as null
	NullValues []string
	Allocator  memory.Allocator
}

// DefaultReaderConfig returns default reader configuration
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		Format:    CSV,
		Kind:      bytesmap.Utf8,
		BatchSize: 65536,
		Allocator: memory.DefaultAllocator,
	}
}

// WriterConfig configures writers
type WriterConfig struct {
	Format Format
	Schema *arrow.Schema
	// Compression is "none", "snappy", "zstd", "lz4" or "gzip"; formats
	// without a codec ignore it
	Compression string
	Allocator   memory.Allocator
}

// DefaultWriterConfig returns default writer configuration
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Format:      CSV,
		Compression: "none",
		Allocator:   memory.DefaultAllocator,
	}
}

func (c *ReaderConfig) normalize() error {
	if c.Column == "" {
		return errors.New(errors.ErrorTypeValidation, "reader column is required")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultReaderConfig().BatchSize
	}
	if c.Allocator == nil {
		c.Allocator = memory.DefaultAllocator
	}
	return nil
}

// NewReader creates a reader over r. Arrow and Parquet need random access;
// other sources are buffered in memory first.
func NewReader(r io.Reader, config *ReaderConfig) (Reader, error) {
	if config == nil {
		config = DefaultReaderConfig()
	}
	cfg := *config
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	switch cfg.Format {
	case CSV:
		return newCSVReader(r, &cfg)
	case JSONL:
		return newJSONLReader(r, &cfg), nil
	case Avro:
		return newAvroReader(r, &cfg)
	case Arrow:
		return newArrowReader(r, &cfg)
	case Parquet:
		return newParquetReader(r, &cfg)
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "unsupported input format: %s", cfg.Format)
	}
}

// NewWriter creates a writer over w. Close closes w when it is an io.Closer.
func NewWriter(w io.Writer, config *WriterConfig) (Writer, error) {
	if config == nil {
		config = DefaultWriterConfig()
	}
	if config.Schema == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "schema is required for writer")
	}
	cfg := *config
	if cfg.Allocator == nil {
		cfg.Allocator = memory.DefaultAllocator
	}

	switch cfg.Format {
	case CSV:
		return newCSVWriter(w, &cfg), nil
	case JSONL:
		return newJSONLWriter(w, &cfg), nil
	case Avro:
		return newAvroWriter(w, &cfg)
	case Arrow:
		return newArrowWriter(w, &cfg)
	case Parquet:
		return newParquetWriter(w, &cfg)
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "unsupported output format: %s", cfg.Format)
	}
}

// Open opens the file at path and returns a reader over it. Closing the
// reader closes the file. Columnar formats are memory mapped since their
// readers seek between the footer and the column chunks.
func Open(path string, config *ReaderConfig) (Reader, error) {
	if config == nil {
		config = DefaultReaderConfig()
	}
	var src interface {
		io.Reader
		io.Closer
	}
	if info := GetFormatInfo(config.Format); info != nil && info.Columnar {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, err
		}
		src = m
	} else {
		f, err := os.Open(path) //nolint:gosec // G304: user supplied input path
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open input").WithDetail("path", path)
		}
		src = f
	}
	r, err := NewReader(src, config)
	if err != nil {
		src.Close()
		return nil, err
	}
	return &fileReader{Reader: r, src: src}, nil
}

// Create creates the file at path and returns a writer over it.
func Create(path string, config *WriterConfig) (Writer, error) {
	f, err := os.Create(path) //nolint:gosec // G304: user supplied output path
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output").WithDetail("path", path)
	}
	w, err := NewWriter(f, config)
	if err != nil {
		f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return w, nil
}

type fileReader struct {
	Reader
	src io.Closer
}

func (r *fileReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.src.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close input")
	}
	return err
}

// closeSink closes w if it is closable.
func closeSink(w io.Writer) error {
	if c, ok := w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to close output")
		}
	}
	return nil
}

// FormatInfo provides information about a file format
type FormatInfo struct {
	Format        Format
	Name          string
	FileExtension string
	MIMEType      string
	// Columnar formats read only the requested column from disk
	Columnar         bool
	SupportsCompress bool
	Readable         bool
	Writable         bool
}

// GetFormatInfo returns information about a format, or nil if unknown
func GetFormatInfo(format Format) *FormatInfo {
	switch format {
	case CSV:
		return &FormatInfo{
			Format:        CSV,
			Name:          "CSV",
			FileExtension: ".csv",
			MIMEType:      "text/csv",
			Readable:      true,
			Writable:      true,
		}
	case JSONL:
		return &FormatInfo{
			Format:        JSONL,
			Name:          "JSON Lines",
			FileExtension: ".jsonl",
			MIMEType:      "application/x-ndjson",
			Readable:      true,
			Writable:      true,
		}
	case Avro:
		return &FormatInfo{
			Format:           Avro,
			Name:             "Apache Avro",
			FileExtension:    ".avro",
			MIMEType:         "application/x-avro",
			SupportsCompress: true,
			Readable:         true,
			Writable:         true,
		}
	case Arrow:
		return &FormatInfo{
			Format:           Arrow,
			Name:             "Apache Arrow",
			FileExtension:    ".arrow",
			MIMEType:         "application/vnd.apache.arrow.file",
			Columnar:         true,
			SupportsCompress: true,
			Readable:         true,
			Writable:         true,
		}
	case Parquet:
		return &FormatInfo{
			Format:           Parquet,
			Name:             "Apache Parquet",
			FileExtension:    ".parquet",
			MIMEType:         "application/x-parquet",
			Columnar:         true,
			SupportsCompress: true,
			Readable:         true,
			Writable:         true,
		}
	default:
		return nil
	}
}

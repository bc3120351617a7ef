// Package compression provides stream compression for spill runs, with
// several algorithms and configurable levels.
//
// # Overview
//
// A Codec wraps an io.Writer or io.Reader so that data written to spill
// files is compressed transparently:
//
//	codec, err := compression.NewCodec(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Fastest,
//	})
//	w, err := codec.NewWriter(file)
//	// write an Arrow IPC stream to w
//	err = w.Close()
//
// # Algorithm Selection
//
//   - LZ4: Extremely fast, decent compression
//   - Snappy/S2: Fast with moderate compression
//   - Zstd: Best compression ratio, good speed
//
// Speed (fastest to slowest): LZ4 > Snappy/S2 > Zstd
// Compression ratio (best to worst): Zstd > S2 > Snappy > LZ4
package compression

import (
	"io"
	"strings"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Snappy represents snappy framed compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level controls the trade-off between compression speed and ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

// ParseAlgorithm converts a configuration string into an Algorithm. The
// empty string means None.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(s)); a {
	case "":
		return None, nil
	case None, Snappy, LZ4, Zstd, S2:
		return a, nil
	default:
		return "", errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", s)
	}
}

// ParseLevel converts a configuration string into a Level. The empty string
// means Default.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "fastest":
		return Fastest, nil
	case "", "default":
		return Default, nil
	case "better":
		return Better, nil
	case "best":
		return Best, nil
	default:
		return 0, errors.Newf(errors.ErrorTypeConfig, "unsupported compression level: %s", s)
	}
}

// Config represents codec configuration.
type Config struct {
	Algorithm Algorithm // Compression algorithm to use
	Level     Level     // Compression level
}

// DefaultConfig returns the configuration used for spill runs: zstd at its
// fastest level.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: Zstd,
		Level:     Fastest,
	}
}

// Codec wraps streams with compression. Implementations are safe for
// concurrent use; the streams they return are not.
type Codec interface {
	// NewWriter returns a writer compressing into dst. Close flushes the
	// compressed stream but does not close dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)

	// NewReader returns a reader decompressing src. Close releases decoder
	// resources but does not close src.
	NewReader(src io.Reader) (io.ReadCloser, error)

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm

	// Level returns the compression level configured.
	Level() Level
}

// NewCodec creates a codec for the provided configuration. If config is
// nil, DefaultConfig is used.
func NewCodec(config *Config) (Codec, error) {
	if config == nil {
		config = DefaultConfig()
	}

	base := baseCodec{algorithm: config.Algorithm, level: config.Level}
	switch config.Algorithm {
	case None, "":
		base.algorithm = None
		return &noneCodec{base}, nil
	case Snappy:
		return &snappyCodec{base}, nil
	case S2:
		return &s2Codec{base}, nil
	case LZ4:
		return &lz4Codec{baseCodec: base, compressionLevel: mapLZ4Level(config.Level)}, nil
	case Zstd:
		return &zstdCodec{baseCodec: base, encoderLevel: mapZstdLevel(config.Level)}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm: %s", config.Algorithm)
	}
}

type baseCodec struct {
	algorithm Algorithm
	level     Level
}

// Algorithm returns the compression algorithm
func (bc *baseCodec) Algorithm() Algorithm {
	return bc.algorithm
}

// Level returns the compression level
func (bc *baseCodec) Level() Level {
	return bc.level
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// None codec (no compression)
type noneCodec struct {
	baseCodec
}

func (nc *noneCodec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{dst}, nil
}

func (nc *noneCodec) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

type snappyCodec struct {
	baseCodec
}

func (sc *snappyCodec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(dst), nil
}

func (sc *snappyCodec) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(src)), nil
}

// S2 codec (Snappy-compatible but better compression)
type s2Codec struct {
	baseCodec
}

func (sc *s2Codec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	opts := []s2.WriterOption{}
	switch sc.level {
	case Better:
		opts = append(opts, s2.WriterBetterCompression())
	case Best:
		opts = append(opts, s2.WriterBestCompression())
	}
	return s2.NewWriter(dst, opts...), nil
}

func (sc *s2Codec) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(src)), nil
}

type lz4Codec struct {
	baseCodec
	compressionLevel lz4.CompressionLevel
}

func (lc *lz4Codec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	w := lz4.NewWriter(dst)
	if err := w.Apply(lz4.CompressionLevelOption(lc.compressionLevel)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid lz4 level")
	}
	return w, nil
}

func (lc *lz4Codec) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(src)), nil
}

type zstdCodec struct {
	baseCodec
	encoderLevel zstd.EncoderLevel
}

func (zc *zstdCodec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zc.encoderLevel))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create zstd encoder")
	}
	return enc, nil
}

func (zc *zstdCodec) NewReader(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to create zstd decoder")
	}
	return dec.IOReadCloser(), nil
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Package config provides the configuration for bytesmap jobs.
//
// A single Config structure describes one distinct or group-count job and
// is organized into sections:
//   - Map: offset width and initial sizing of each map
//   - Pipeline: partitioning, batch size and the memory budget
//   - Spill: where and how partial state is written under memory pressure
//   - Input / Output: file formats and locations
//   - Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg := config.Default("distinct-users")
//	cfg.Input.Column = "user_id"
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ajitpratap0/bytesmap/pkg/errors"
)

// Config is the complete configuration of a job.
type Config struct {
	// Name identifies the job in logs and metrics
	Name string `yaml:"name" json:"name" mapstructure:"name"`

	Map           MapConfig           `yaml:"map" json:"map" mapstructure:"map"`
	Pipeline      PipelineConfig      `yaml:"pipeline" json:"pipeline" mapstructure:"pipeline"`
	Spill         SpillConfig         `yaml:"spill" json:"spill" mapstructure:"spill"`
	Input         InputConfig         `yaml:"input" json:"input" mapstructure:"input"`
	Output        OutputConfig        `yaml:"output" json:"output" mapstructure:"output"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// MapConfig controls the maps built by each partition.
type MapConfig struct {
	// LargeOffsets selects 64-bit offsets (LargeString/LargeBinary output)
	LargeOffsets bool `yaml:"large_offsets" json:"large_offsets" mapstructure:"large_offsets"`
	// Binary materializes values as binary instead of utf8
	Binary bool `yaml:"binary" json:"binary" mapstructure:"binary"`
	// InitialCapacity is the initial number of index slots
	InitialCapacity int `yaml:"initial_capacity" json:"initial_capacity" mapstructure:"initial_capacity"`
	// BufferCapacity is the initial arena size in bytes
	BufferCapacity int `yaml:"buffer_capacity" json:"buffer_capacity" mapstructure:"buffer_capacity"`
}

// PipelineConfig controls partitioned execution.
type PipelineConfig struct {
	// Partitions is the number of hash partitions, one worker each
	Partitions int `yaml:"partitions" json:"partitions" mapstructure:"partitions"`
	// BatchSize is the number of rows read per input chunk
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`
	// MemoryLimitMB bounds the total map memory across partitions
	MemoryLimitMB int `yaml:"memory_limit_mb" json:"memory_limit_mb" mapstructure:"memory_limit_mb"`
	// QueueDepth is the number of batches buffered per partition
	QueueDepth int `yaml:"queue_depth" json:"queue_depth" mapstructure:"queue_depth"`
}

// SpillConfig controls spilling of partial state.
type SpillConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	// Directory holds spill runs; empty means the system temp directory
	Directory string `yaml:"directory" json:"directory" mapstructure:"directory"`
	// Compression is one of none, zstd, s2, snappy, lz4
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
	// CompressionLevel is one of fastest, default, better, best
	CompressionLevel string `yaml:"compression_level" json:"compression_level" mapstructure:"compression_level"`
}

// InputConfig describes where values come from.
type InputConfig struct {
	// Format is one of csv, jsonl, avro, arrow, parquet
	Format string `yaml:"format" json:"format" mapstructure:"format"`
	Path   string `yaml:"path" json:"path" mapstructure:"path"`
	// Column names the column whose values are aggregated
	Column string `yaml:"column" json:"column" mapstructure:"column"`
	// NullValues lists CSV strings read as null
	NullValues []string `yaml:"null_values" json:"null_values" mapstructure:"null_values"`
}

// OutputConfig describes where results go.
type OutputConfig struct {
	// Format is one of arrow, parquet, avro, csv, jsonl
	Format string `yaml:"format" json:"format" mapstructure:"format"`
	// Path is the output file; empty or "-" means standard output
	Path string `yaml:"path" json:"path" mapstructure:"path"`
	// Compression applies to arrow (zstd, lz4), parquet (snappy, zstd, gzip)
	// and avro (snappy, deflate) output
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogEncoding is json or console
	LogEncoding string `yaml:"log_encoding" json:"log_encoding" mapstructure:"log_encoding"`
	// MetricsAddress serves Prometheus metrics when set, e.g. ":9090"
	MetricsAddress string `yaml:"metrics_address" json:"metrics_address" mapstructure:"metrics_address"`
	// EnableTracing exports spans to standard error
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
}

// Default returns a configuration with production defaults.
func Default(name string) *Config {
	return &Config{
		Name: name,
		Map: MapConfig{
			InitialCapacity: 128,
			BufferCapacity:  8 * 1024,
		},
		Pipeline: PipelineConfig{
			Partitions:    runtime.NumCPU(),
			BatchSize:     64 * 1024,
			MemoryLimitMB: DefaultMemoryLimitMB(),
			QueueDepth:    4,
		},
		Spill: SpillConfig{
			Enabled:          true,
			Compression:      "zstd",
			CompressionLevel: "fastest",
		},
		Input: InputConfig{
			Format: "csv",
		},
		Output: OutputConfig{
			Format: "csv",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogEncoding: "console",
		},
	}
}

// DefaultMemoryLimitMB returns a quarter of the currently available system
// memory, at least 64MB. It falls back to 1GB when memory cannot be read.
func DefaultMemoryLimitMB() int {
	const floor, fallback = 64, 1024

	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return fallback
	}
	limit := int(vm.Available / 4 / (1 << 20))
	if limit < floor {
		return floor
	}
	return limit
}

var (
	inputFormats       = map[string]bool{"csv": true, "jsonl": true, "avro": true, "arrow": true, "parquet": true}
	outputFormats      = map[string]bool{"csv": true, "jsonl": true, "avro": true, "arrow": true, "parquet": true}
	spillCompressions  = map[string]bool{"": true, "none": true, "zstd": true, "s2": true, "snappy": true, "lz4": true}
	compressionLevels  = map[string]bool{"": true, "fastest": true, "default": true, "better": true, "best": true}
	outputCompressions = map[string]map[string]bool{
		"arrow":   {"": true, "none": true, "zstd": true, "lz4": true},
		"parquet": {"": true, "none": true, "snappy": true, "zstd": true, "gzip": true},
		"csv":     {"": true, "none": true},
		"jsonl":   {"": true, "none": true},
		"avro":    {"": true, "none": true, "snappy": true, "deflate": true},
	}
)

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "name is required")
	}
	if c.Map.InitialCapacity < 0 || c.Map.BufferCapacity < 0 {
		return errors.New(errors.ErrorTypeConfig, "map capacities cannot be negative")
	}
	if c.Pipeline.Partitions <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "partitions must be positive, got %d", c.Pipeline.Partitions)
	}
	if c.Pipeline.BatchSize <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.MemoryLimitMB <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "memory_limit_mb must be positive, got %d", c.Pipeline.MemoryLimitMB)
	}
	if c.Pipeline.QueueDepth < 0 {
		return errors.New(errors.ErrorTypeConfig, "queue_depth cannot be negative")
	}
	if !spillCompressions[c.Spill.Compression] {
		return errors.Newf(errors.ErrorTypeConfig, "unsupported spill compression %q", c.Spill.Compression)
	}
	if !compressionLevels[c.Spill.CompressionLevel] {
		return errors.Newf(errors.ErrorTypeConfig, "unsupported compression level %q", c.Spill.CompressionLevel)
	}
	if !inputFormats[c.Input.Format] {
		return errors.Newf(errors.ErrorTypeConfig, "unsupported input format %q", c.Input.Format)
	}
	if c.Input.Column == "" {
		return errors.New(errors.ErrorTypeConfig, "input column is required")
	}
	if !outputFormats[c.Output.Format] {
		return errors.Newf(errors.ErrorTypeConfig, "unsupported output format %q", c.Output.Format)
	}
	if !outputCompressions[c.Output.Format][c.Output.Compression] {
		return errors.Newf(errors.ErrorTypeConfig, "compression %q is not supported for %s output",
			c.Output.Compression, c.Output.Format)
	}
	return nil
}

// PartitionBudget returns the per-partition map memory budget in bytes.
func (c *Config) PartitionBudget() int {
	if c.Pipeline.Partitions <= 0 {
		return c.Pipeline.MemoryLimitMB << 20
	}
	return (c.Pipeline.MemoryLimitMB << 20) / c.Pipeline.Partitions
}

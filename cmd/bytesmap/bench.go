package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/bytesmap/internal/pipeline"
	"github.com/ajitpratap0/bytesmap/pkg/aggregate"
	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
	"github.com/ajitpratap0/bytesmap/pkg/formats/columnar"
	"github.com/ajitpratap0/bytesmap/pkg/logger"
)

type benchOptions struct {
	Operator     string  `json:"operator"`
	Rows         int     `json:"rows"`
	Distinct     int     `json:"distinct"`
	ValueLength  int     `json:"value_length"`
	NullFraction float64 `json:"null_fraction"`
	BatchSize    int     `json:"batch_size"`
	Partitions   int     `json:"partitions"`
	LargeOffsets bool    `json:"large_offsets"`
	Seed         uint64  `json:"seed"`
}

// benchReport is one benchmark result.
type benchReport struct {
	benchOptions
	Groups        int64         `json:"groups"`
	Duration      time.Duration `json:"duration_ns"`
	RowsPerSecond float64       `json:"rows_per_second"`
	InputBytes    int64         `json:"input_bytes"`
	MBPerSecond   float64       `json:"mb_per_second"`
}

func newBenchCommand() *cobra.Command {
	var opts benchOptions
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure aggregation throughput on generated values",
		Long: `bench generates random values in memory and runs them through the
partitioned aggregation, reporting rows and bytes per second. Generation is
not timed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runBench(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printBenchReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Operator, "operator", "groupby", "Operator to run (distinct, groupby)")
	f.IntVar(&opts.Rows, "rows", 1_000_000, "Number of generated rows")
	f.IntVar(&opts.Distinct, "distinct", 100_000, "Number of distinct values")
	f.IntVar(&opts.ValueLength, "value-length", 16, "Length of each value in bytes; 8 or less stays inline")
	f.Float64Var(&opts.NullFraction, "null-fraction", 0, "Fraction of null rows")
	f.IntVar(&opts.BatchSize, "batch-size", 64*1024, "Rows per chunk")
	f.IntVar(&opts.Partitions, "partitions", 0, "Number of partitions, 0 for one per CPU")
	f.BoolVar(&opts.LargeOffsets, "large-offsets", false, "Use 64-bit offsets")
	f.Uint64Var(&opts.Seed, "seed", 1, "Random seed")
	f.BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func runBench(ctx context.Context, opts benchOptions) (*benchReport, error) {
	var j job
	switch opts.Operator {
	case "distinct":
		j = distinctJob
	case "groupby":
		j = groupCountJob
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown operator %q", opts.Operator)
	}
	if opts.Rows <= 0 || opts.Distinct <= 0 || opts.ValueLength <= 0 || opts.BatchSize <= 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "rows, distinct, value-length and batch-size must be positive")
	}

	src, inputBytes := generate(opts)
	defer src.Close()

	runner, err := pipeline.New(pipeline.Config{
		Operator:   j.operator,
		Kind:       bytesmap.Utf8,
		Partitions: opts.Partitions,
	}, func(int) aggregate.Accumulator {
		return j.newAccumulator(bytesmap.Utf8, opts.LargeOffsets)
	}, logger.Get())
	if err != nil {
		return nil, err
	}

	states, err := runner.Run(ctx, src)
	if err != nil {
		return nil, err
	}
	for _, rec := range states {
		rec.Release()
	}

	stats := runner.Stats()
	report := &benchReport{
		benchOptions:  opts,
		Groups:        stats.Groups,
		Duration:      stats.Duration,
		RowsPerSecond: stats.ThroughputRPS,
		InputBytes:    inputBytes,
	}
	if secs := stats.Duration.Seconds(); secs > 0 {
		report.MBPerSecond = float64(inputBytes) / (1 << 20) / secs
	}
	return report, nil
}

// generate builds the input chunks up front so that only aggregation is
// timed.
func generate(opts benchOptions) (*memoryReader, int64) {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // benchmark data
	b := array.NewStringBuilder(memory.DefaultAllocator)
	defer b.Release()

	r := &memoryReader{}
	var total int64
	for done := 0; done < opts.Rows; {
		n := min(opts.BatchSize, opts.Rows-done)
		b.Reserve(n)
		for i := 0; i < n; i++ {
			if opts.NullFraction > 0 && rng.Float64() < opts.NullFraction {
				b.AppendNull()
				continue
			}
			v := fmt.Sprintf("%0*d", opts.ValueLength, rng.IntN(opts.Distinct))
			total += int64(len(v))
			b.Append(v)
		}
		r.chunks = append(r.chunks, b.NewArray())
		done += n
	}
	return r, total
}

// memoryReader serves generated chunks.
type memoryReader struct {
	chunks []arrow.Array
}

func (r *memoryReader) Next(ctx context.Context) (arrow.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCanceled, "benchmark canceled")
	}
	if len(r.chunks) == 0 {
		return nil, io.EOF
	}
	c := r.chunks[0]
	r.chunks = r.chunks[1:]
	return c, nil
}

func (r *memoryReader) DataType() arrow.DataType { return arrow.BinaryTypes.String }

func (r *memoryReader) Format() columnar.Format { return columnar.Arrow }

func (r *memoryReader) Close() error {
	for _, c := range r.chunks {
		c.Release()
	}
	r.chunks = nil
	return nil
}

func printBenchReport(w io.Writer, r *benchReport) {
	fmt.Fprintf(w, "=== %s benchmark ===\n", r.Operator)
	fmt.Fprintf(w, "  rows:          %d (%d distinct requested, %d bytes each)\n", r.Rows, r.Distinct, r.ValueLength)
	fmt.Fprintf(w, "  groups:        %d\n", r.Groups)
	fmt.Fprintf(w, "  duration:      %v\n", r.Duration)
	fmt.Fprintf(w, "  rows/sec:      %.0f\n", r.RowsPerSecond)
	fmt.Fprintf(w, "  MB/sec:        %.1f\n", r.MBPerSecond)
}

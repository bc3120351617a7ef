// Package pipeline runs a byte-column aggregation over a stream of input
// chunks using several partitions in parallel.
//
// # Overview
//
// One reader goroutine pulls chunks from a columnar.Reader and splits each
// by value hash into per-partition arrays. Each partition has a worker
// goroutine owning its own accumulator, so no map is ever shared between
// goroutines. Equal values always hash to the same partition, which makes
// the per-partition results disjoint.
//
// # Memory
//
// When a partition's accumulator grows past Config.PartitionBudget, its
// state is drained to a spill run on disk and the accumulator starts over.
// This bounds memory while input is consumed. At the end the runs are
// merged back in write order into one accumulator, so the final merge of a
// partition needs memory for all of its distinct values regardless of the
// budget. Use more partitions when a partition's distinct values do not
// fit in memory.
//
// # Basic Usage
//
//	runner, err := pipeline.New(pipeline.Config{
//	    Operator:   "count_distinct",
//	    Kind:       bytesmap.Utf8,
//	    Partitions: 8,
//	}, func(int) aggregate.Accumulator {
//	    return aggregate.NewCountDistinct[int32](bytesmap.Utf8)
//	}, logger)
//
//	states, err := runner.Run(ctx, reader)
package pipeline

import (
	"context"
	"io"
	"runtime"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/bytesmap/pkg/aggregate"
	"github.com/ajitpratap0/bytesmap/pkg/bytesmap"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
	"github.com/ajitpratap0/bytesmap/pkg/formats/columnar"
	"github.com/ajitpratap0/bytesmap/pkg/logger"
	"github.com/ajitpratap0/bytesmap/pkg/metrics"
	"github.com/ajitpratap0/bytesmap/pkg/observability"
	"github.com/ajitpratap0/bytesmap/pkg/spill"
)

// Config contains pipeline configuration
type Config struct {
	// Operator names the aggregation in logs, metrics and spans
	Operator string
	// Kind is the value kind the accumulators expect
	Kind bytesmap.OutputType
	// Partitions is the number of parallel workers; 0 means NumCPU
	Partitions int
	// QueueDepth is the number of chunks buffered per partition
	QueueDepth int
	// PartitionBudget is the accumulator size in bytes above which a
	// partition spills; 0 disables spilling
	PartitionBudget int64
	// Spill receives spilled runs; required when PartitionBudget is set
	Spill     *spill.Manager
	Allocator memory.Allocator
}

// Factory creates the accumulator for a partition. It is also used to
// create the accumulator that merges a partition's spilled runs.
type Factory func(partition int) aggregate.Accumulator

// Runner executes one aggregation. A Runner is not reusable.
type Runner struct {
	config     Config
	factory    Factory
	logger     *zap.Logger
	stats      counters
	throughput *metrics.ThroughputTracker
	duration   time.Duration
}

// New creates a runner. A nil logger uses the global logger.
func New(config Config, factory Factory, log *zap.Logger) (*Runner, error) {
	if factory == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "accumulator factory is required")
	}
	if config.Partitions < 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "partitions must not be negative, got %d", config.Partitions)
	}
	if config.Partitions == 0 {
		config.Partitions = runtime.NumCPU()
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 4
	}
	if config.PartitionBudget > 0 && config.Spill == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "a spill manager is required when a partition budget is set")
	}
	if config.Allocator == nil {
		config.Allocator = memory.DefaultAllocator
	}
	if config.Operator == "" {
		config.Operator = "aggregate"
	}
	if log == nil {
		log = logger.Get()
	}

	return &Runner{
		config:     config,
		factory:    factory,
		logger:     log.With(zap.String("operator", config.Operator)),
		throughput: metrics.NewThroughputTracker(config.Operator),
	}, nil
}

// Run consumes src until it is exhausted and returns the state record of
// every partition, in partition order. The caller releases the records.
func (r *Runner) Run(ctx context.Context, src columnar.Reader) (states []arrow.Record, err error) {
	start := time.Now()
	n := r.config.Partitions

	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.String("operator", r.config.Operator),
		attribute.Int("partitions", n),
		attribute.String("format", string(src.Format())))
	defer func() { observability.EndSpan(span, err) }()

	r.logger.Info("starting pipeline",
		zap.Int("partitions", n),
		zap.Int("queue_depth", r.config.QueueDepth),
		zap.Int64("partition_budget", r.config.PartitionBudget),
		zap.String("kind", r.config.Kind.String()))

	g, gctx := errgroup.WithContext(ctx)
	queues := make([]chan arrow.Array, n)
	for i := range queues {
		queues[i] = make(chan arrow.Array, r.config.QueueDepth)
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		return r.read(gctx, src, queues)
	})

	results := make([]arrow.Record, n)
	for i := 0; i < n; i++ {
		w := r.newWorker(i)
		in := queues[i]
		g.Go(func() error {
			rec, err := w.run(gctx, in)
			if err != nil {
				return err
			}
			results[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, rec := range results {
			if rec != nil {
				rec.Release()
			}
		}
		r.logger.Error("pipeline failed", errors.LogFields(err)...)
		return nil, err
	}

	for _, rec := range results {
		r.stats.groups.Add(rec.NumRows())
	}
	r.duration = time.Since(start)
	stats := r.Stats()
	r.throughput.GetAndReset()
	span.SetAttributes(
		attribute.Int64("rows", stats.Rows),
		attribute.Int64("groups", stats.Groups),
		attribute.Int64("spills", stats.Spills))
	r.logger.Info("pipeline completed",
		zap.Int64("rows", stats.Rows),
		zap.Int64("batches", stats.Batches),
		zap.Int64("groups", stats.Groups),
		zap.Int64("spills", stats.Spills),
		zap.Duration("duration", stats.Duration),
		zap.Float64("rows_per_second", stats.ThroughputRPS))
	return results, nil
}

// read splits every chunk of src across the partition queues.
func (r *Runner) read(ctx context.Context, src columnar.Reader, queues []chan arrow.Array) error {
	part := newPartitioner(len(queues), r.config.Kind, r.config.Allocator)
	defer part.release()

	for {
		chunk, err := src.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		r.stats.batches.Add(1)

		parts, err := part.split(chunk)
		chunk.Release()
		if err != nil {
			return err
		}
		for i, arr := range parts {
			if arr == nil {
				continue
			}
			select {
			case queues[i] <- arr:
			case <-ctx.Done():
				releaseAll(parts[i:])
				return errors.Wrap(ctx.Err(), errors.ErrorTypeCanceled, "pipeline canceled")
			}
		}
	}
}

// Stats returns the counters of the run so far.
func (r *Runner) Stats() Stats {
	return r.stats.snapshot(r.duration)
}

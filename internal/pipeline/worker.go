package pipeline

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bytesmap/pkg/aggregate"
	"github.com/ajitpratap0/bytesmap/pkg/errors"
	"github.com/ajitpratap0/bytesmap/pkg/metrics"
	"github.com/ajitpratap0/bytesmap/pkg/observability"
	"github.com/ajitpratap0/bytesmap/pkg/spill"
)

// worker owns the accumulator of one partition. Only its goroutine
// touches it.
type worker struct {
	id        int
	runner    *Runner
	acc       aggregate.Accumulator
	runs      []spill.Run
	collector *metrics.Collector
	logger    *zap.Logger
}

func (r *Runner) newWorker(id int) *worker {
	return &worker{
		id:        id,
		runner:    r,
		acc:       r.factory(id),
		collector: metrics.NewCollector(r.config.Operator, id),
		logger:    r.logger.With(zap.Int("partition", id)),
	}
}

// run consumes in until it is closed and then produces the partition's
// final state.
func (w *worker) run(ctx context.Context, in <-chan arrow.Array) (rec arrow.Record, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.partition", attribute.Int("partition", w.id))
	defer func() { observability.EndSpan(span, err) }()

	for arr := range in {
		err := w.update(ctx, arr)
		arr.Release()
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCanceled, "partition canceled")
	}

	span.SetAttributes(attribute.Int("spills", len(w.runs)))
	return w.finish(ctx)
}

func (w *worker) update(ctx context.Context, arr arrow.Array) error {
	if err := w.acc.Update(arr); err != nil {
		return errors.Wrap(err, errors.GetType(err), "failed to update partition state").
			WithDetail("partition", w.id)
	}
	w.collector.AddBatch(arr.Len())
	size := w.acc.Size()
	w.collector.SetMap(w.acc.Len(), size)
	w.runner.stats.rows.Add(int64(arr.Len()))
	w.runner.throughput.Increment(int64(arr.Len()))

	if budget := w.runner.config.PartitionBudget; budget > 0 && int64(size) > budget {
		return w.spill(ctx)
	}
	return nil
}

// spill moves the accumulator state to a new run, leaving it empty.
func (w *worker) spill(ctx context.Context) error {
	before := w.acc.Size()
	state, err := w.acc.State()
	if err != nil {
		return err
	}
	defer state.Release()

	run, err := w.runner.config.Spill.Write(ctx, state)
	if err != nil {
		return err
	}
	w.runs = append(w.runs, run)
	w.collector.AddSpill(run.Bytes)
	w.runner.stats.spills.Add(1)
	w.runner.stats.spilledBytes.Add(run.Bytes)

	w.logger.Info("spilled partition state",
		zap.Int("run", len(w.runs)),
		zap.Int64("groups", run.Rows),
		zap.Int("state_bytes", before),
		zap.Int64("file_bytes", run.Bytes))
	return nil
}

// finish returns the partition state. Spilled runs are merged in the order
// they were written, then the in-memory state, so groups keep the order in
// which the partition first saw them. The merge holds every distinct value
// of the partition at once and is not limited by the budget.
func (w *worker) finish(ctx context.Context) (arrow.Record, error) {
	timer := metrics.NewTimer("materialize")
	defer func() { w.collector.ObserveMaterialize(timer.Stop()) }()

	if len(w.runs) == 0 {
		return w.acc.State()
	}

	merged := w.runner.factory(w.id)
	for _, run := range w.runs {
		if err := w.runner.config.Spill.Read(ctx, run, merged.Merge); err != nil {
			return nil, err
		}
		if err := w.runner.config.Spill.Remove(run); err != nil {
			return nil, err
		}
	}

	state, err := w.acc.State()
	if err != nil {
		return nil, err
	}
	defer state.Release()
	if err := merged.Merge(state); err != nil {
		return nil, err
	}

	w.logger.Debug("merged spilled runs",
		zap.Int("runs", len(w.runs)),
		zap.Int("groups", merged.Len()))
	return merged.State()
}

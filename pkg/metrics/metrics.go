// Package metrics provides Prometheus instrumentation for bytesmap operators
// and pipelines.
//
// # Overview
//
// Package-level metric vectors are registered with the default registry on
// import. Operators record through a Collector bound to their operator name
// and partition, so every series carries the same two labels:
//
//	c := metrics.NewCollector("count_distinct", 3)
//	c.AddRows(int64(batch.Len()))
//	c.SetMapBytes(m.Size())
//
// Timer measures an operation and ThroughputTracker reports rows per second
// over a window.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsProcessed counts input rows consumed by an operator.
	// Labels: operator, partition
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bytesmap_rows_processed_total",
			Help: "Total number of input rows processed",
		},
		[]string{"operator", "partition"},
	)

	// BatchesProcessed counts input batches consumed by an operator.
	BatchesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bytesmap_batches_processed_total",
			Help: "Total number of input batches processed",
		},
		[]string{"operator", "partition"},
	)

	// DistinctValues is the number of distinct values currently held.
	DistinctValues = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bytesmap_distinct_values",
			Help: "Distinct values currently held in memory",
		},
		[]string{"operator", "partition"},
	)

	// MapMemory is the memory reserved by a partition's map.
	MapMemory = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bytesmap_map_memory_bytes",
			Help: "Bytes reserved by a partition's map",
		},
		[]string{"operator", "partition"},
	)

	// Spills counts spill runs written.
	Spills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bytesmap_spills_total",
			Help: "Total number of spill runs written",
		},
		[]string{"operator", "partition"},
	)

	// SpilledBytes counts bytes written to spill runs after compression.
	SpilledBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bytesmap_spilled_bytes_total",
			Help: "Total bytes written to spill runs",
		},
		[]string{"operator", "partition"},
	)

	// MaterializeLatency tracks the time to turn a map into arrays, in seconds.
	MaterializeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bytesmap_materialize_latency_seconds",
			Help: "Time to materialize a map into Arrow arrays",
			Buckets: []float64{
				1e-6, // 1μs - empty or tiny maps
				1e-5,
				1e-4,
				1e-3, // 1ms - typical partition
				1e-2,
				1e-1,
				1, // 1s - very large maps
			},
		},
		[]string{"operator"},
	)

	// Throughput tracks input rows per second.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bytesmap_throughput_rows_per_second",
			Help: "Current throughput in rows per second",
		},
		[]string{"operator"},
	)
)

// Collector records metrics for one operator partition.
type Collector struct {
	operator  string
	partition string

	rows     prometheus.Counter
	batches  prometheus.Counter
	distinct prometheus.Gauge
	memory   prometheus.Gauge
	spills   prometheus.Counter
	spilled  prometheus.Counter
}

// NewCollector creates a collector for the given operator and partition.
func NewCollector(operator string, partition int) *Collector {
	p := strconv.Itoa(partition)
	return &Collector{
		operator:  operator,
		partition: p,
		rows:      RowsProcessed.WithLabelValues(operator, p),
		batches:   BatchesProcessed.WithLabelValues(operator, p),
		distinct:  DistinctValues.WithLabelValues(operator, p),
		memory:    MapMemory.WithLabelValues(operator, p),
		spills:    Spills.WithLabelValues(operator, p),
		spilled:   SpilledBytes.WithLabelValues(operator, p),
	}
}

// AddBatch records one input batch of n rows.
func (c *Collector) AddBatch(n int) {
	c.batches.Inc()
	c.rows.Add(float64(n))
}

// SetMap records the current size of a map.
func (c *Collector) SetMap(distinct, bytes int) {
	c.distinct.Set(float64(distinct))
	c.memory.Set(float64(bytes))
}

// AddSpill records a spill run of the given compressed size.
func (c *Collector) AddSpill(bytes int64) {
	c.spills.Inc()
	c.spilled.Add(float64(bytes))
}

// ObserveMaterialize records how long a materialization took.
func (c *Collector) ObserveMaterialize(d time.Duration) {
	MaterializeLatency.WithLabelValues(c.operator).Observe(d.Seconds())
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called
// repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over time windows.
// Safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	operator  string
}

// NewThroughputTracker creates a new throughput tracker for an operator.
func NewThroughputTracker(operator string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		operator:  operator,
	}
}

// Increment adds n to the row count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns rows per second since the last reset, publishes it,
// and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.operator).Set(throughput)

	return throughput
}

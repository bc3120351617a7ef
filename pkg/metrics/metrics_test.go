package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector("test_collector", 7)

	c.AddBatch(100)
	c.AddBatch(50)
	c.SetMap(12, 4096)
	c.AddSpill(1024)
	c.ObserveMaterialize(time.Millisecond)

	assert.Equal(t, 150.0, testutil.ToFloat64(RowsProcessed.WithLabelValues("test_collector", "7")))
	assert.Equal(t, 2.0, testutil.ToFloat64(BatchesProcessed.WithLabelValues("test_collector", "7")))
	assert.Equal(t, 12.0, testutil.ToFloat64(DistinctValues.WithLabelValues("test_collector", "7")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(MapMemory.WithLabelValues("test_collector", "7")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Spills.WithLabelValues("test_collector", "7")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(SpilledBytes.WithLabelValues("test_collector", "7")))
	assert.Equal(t, 1, testutil.CollectAndCount(MaterializeLatency, "bytesmap_materialize_latency_seconds"))
}

func TestThroughputTracker(t *testing.T) {
	tracker := NewThroughputTracker("test_throughput")
	tracker.Increment(1000)
	time.Sleep(10 * time.Millisecond)

	rate := tracker.GetAndReset()
	assert.Greater(t, rate, 0.0)
	assert.Equal(t, rate, testutil.ToFloat64(Throughput.WithLabelValues("test_throughput")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("spill")
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
	assert.Equal(t, "spill", timer.Name())
}

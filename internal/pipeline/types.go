package pipeline

import (
	"sync/atomic"
	"time"
)

// Stats summarizes one run
type Stats struct {
	// Throughput metrics
	Rows          int64         `json:"rows"`
	Batches       int64         `json:"batches"`
	ThroughputRPS float64       `json:"throughput_rps"`
	Duration      time.Duration `json:"duration"`

	// Spill metrics
	Spills       int64 `json:"spills"`
	SpilledBytes int64 `json:"spilled_bytes"`

	// Groups is the number of result rows over all partitions
	Groups int64 `json:"groups"`
}

type counters struct {
	rows         atomic.Int64
	batches      atomic.Int64
	spills       atomic.Int64
	spilledBytes atomic.Int64
	groups       atomic.Int64
}

func (c *counters) snapshot(d time.Duration) Stats {
	s := Stats{
		Rows:         c.rows.Load(),
		Batches:      c.batches.Load(),
		Duration:     d,
		Spills:       c.spills.Load(),
		SpilledBytes: c.spilledBytes.Load(),
		Groups:       c.groups.Load(),
	}
	if d > 0 {
		s.ThroughputRPS = float64(s.Rows) / d.Seconds()
	}
	return s
}

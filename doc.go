// Package bytesmap computes distinct values and per-value counts over
// string and binary columns stored as Apache Arrow arrays.
//
// At its core is a deduplicating map from byte strings to a payload. Each
// distinct value is stored once, either packed inline in its index slot
// when it is at most 8 bytes long or copied into a contiguous arena. The
// accumulated values can be handed out as an Arrow String, LargeString,
// Binary or LargeBinary array without copying the arena.
//
// # Architecture
//
//	pkg/bytesmap       - The map, the set and zero-copy materialization
//	pkg/aggregate      - COUNT DISTINCT, GROUP BY and group counting built on the map
//	internal/pipeline  - Hash partitioned parallel execution with spilling
//	pkg/spill          - Compressed Arrow IPC runs for partial state
//	pkg/formats        - CSV, JSON Lines, Avro, Arrow IPC and Parquet readers and writers
//	pkg/config         - Job configuration
//	pkg/logger         - Structured logging with zap
//	pkg/metrics        - Prometheus instrumentation
//	pkg/observability  - OpenTelemetry tracing
//
// # Quick Start
//
//	set := bytesmap.NewSet[int32](bytesmap.Utf8)
//	set.Insert(values)
//	distinct := set.IntoArray() // *array.String, first-seen order
//
// Counting rows per value:
//
//	counts := bytesmap.New[int32, int64](bytesmap.Utf8)
//	counts.InsertOrUpdate(values,
//	    func([]byte, bool) int64 { return 1 },
//	    func(c *int64) { *c++ })
//
// # Command Line
//
//	bytesmap distinct --input events.parquet --input-format parquet --column user_id --count
//	bytesmap groupby --input events.csv --column country --output counts.arrow --output-format arrow
//	bytesmap bench --rows 10000000 --distinct 1000000
//
// Every flag can also be set in a YAML file passed with --config or through
// a BYTESMAP_ environment variable such as BYTESMAP_PIPELINE_PARTITIONS.
package bytesmap

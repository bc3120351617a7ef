// Package bytesmap provides a deduplicating map and set keyed by
// variable-length byte strings, built to run inside columnar operators.
//
// # Overview
//
// A BytesMap consumes Arrow arrays of String, LargeString, Binary or
// LargeBinary values batch by batch, assigns each distinct value a payload
// produced by a caller-supplied function, and finally materializes the
// distinct values into a new Arrow array in the order they were first seen.
// The materialized array shares the map's internal buffers, so producing it
// copies no value bytes.
//
// It backs COUNT DISTINCT accumulators and single-column GROUP BY: the set
// variant (BytesSet) tracks only membership, while the map variant carries
// a group index, a counter or any other per-key state.
//
// # Storage
//
// Distinct values are appended to a byte arena together with an offsets
// array that has exactly the shape of an Arrow offsets buffer. The hash
// index stores one fixed-size entry per value. Values of at most eight bytes
// are packed into the entry itself so they compare without touching the
// arena; longer values record their arena start offset.
//
// # Protocols
//
// Two insertion protocols are offered:
//
//   - InsertIfNew calls makePayload for each new value and observe for
//     every row, new or not. Existing payloads are never modified.
//   - InsertOrUpdate calls makePayload for each new value and update, with
//     a pointer to the stored payload, for every repeated value.
//
// Callbacks run synchronously in row order. GetPayloads looks payloads up
// without modifying the map.
//
// # Lifecycle
//
//	m := bytesmap.New[int32, int64](bytesmap.Utf8)
//	m.InsertOrUpdate(batch, func([]byte, bool) int64 { return 1 }, func(c *int64) { *c++ })
//	distinct, counts := m.Drain()
//
// IntoArray and Drain leave the map empty and ready for reuse. Take hands
// the accumulated state to the caller and leaves a fresh map in place,
// which is how operators spill or emit partial state.
//
// # Failure
//
// Feeding an array whose type does not match the configured OutputType, or
// growing the arena beyond what the offset width can address, panics with
// a *errors.Error. Operator boundaries use errors.Recover to turn these
// into returned errors.
//
// A map is not safe for concurrent use. Use one map per partition and merge
// materialized results.
package bytesmap

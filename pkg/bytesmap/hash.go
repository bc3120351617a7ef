package bytesmap

import (
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// hasher computes seeded 64-bit hashes of values. Each map draws its own
// seed so hash layouts differ between instances.
type hasher struct {
	seed   uint64
	digest xxhash.Digest
}

func newHasher() hasher {
	seed := rand.Uint64()
	h := hasher{seed: seed}
	h.digest.ResetWithSeed(seed)
	return h
}

func (h *hasher) sum(value []byte) uint64 {
	h.digest.ResetWithSeed(h.seed)
	_, _ = h.digest.Write(value)
	return h.digest.Sum64()
}

// hashBatch fills dst with one hash per row of b. Null rows hash to zero.
func (h *hasher) hashBatch(b *batch, dst []uint64) []uint64 {
	n := b.len()
	if cap(dst) < n {
		dst = make([]uint64, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		if b.isNull(i) {
			dst[i] = 0
			continue
		}
		dst[i] = h.sum(b.value(i))
	}
	return dst
}

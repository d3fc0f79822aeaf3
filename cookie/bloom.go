package cookie

import (
	"encoding/binary"
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/b4ae-project/b4ae/primitive"
)

// filter is a Bloom filter sized at construction time for an expected item
// count and false-positive rate. The ecosystem has no
// ready two-generation rotating Bloom filter, so the bit array and the
// k-hash-function layer are hand-rolled here on top of bitset's plain
// fixed-size bit vector (see DESIGN.md).
type filter struct {
	bits *bitset.BitSet
	m    uint
	k    uint
}

// newFilter sizes m (bit count) and k (hash count) from the standard
// optimal-Bloom-filter formulas for n expected items at false-positive
// rate p.
func newFilter(n int, p float64) *filter {
	if n < 1 {
		n = 1
	}
	fn := float64(n)
	m := uint(math.Ceil(-fn * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m < 64 {
		m = 64
	}
	k := uint(math.Round(float64(m) / fn * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
		// With k held below its optimum, grow m so the rate stays at p.
		m = uint(math.Ceil(-float64(k) * fn / math.Log(1-math.Pow(p, 1/float64(k)))))
	}
	return &filter{bits: bitset.New(m), m: m, k: k}
}

// indices derives k independent-enough bit positions from a single
// SHA3-256 digest via Kirsch-Mitzenmacher double hashing: h1 and h2 are the
// digest's first and second 8-byte words, and index_i = (h1 + i*h2) mod m.
func (f *filter) indices(item []byte) []uint {
	digest := primitive.Hash(item)
	h1 := binary.BigEndian.Uint64(digest[0:8])
	h2 := binary.BigEndian.Uint64(digest[8:16])
	out := make([]uint, f.k)
	for i := uint(0); i < f.k; i++ {
		out[i] = uint((h1 + uint64(i)*h2) % uint64(f.m))
	}
	return out
}

// add inserts item into the filter.
func (f *filter) add(item []byte) {
	for _, idx := range f.indices(item) {
		f.bits.Set(idx)
	}
}

// test reports whether item has possibly been added before (false
// positives are possible; false negatives are not).
func (f *filter) test(item []byte) bool {
	for _, idx := range f.indices(item) {
		if !f.bits.Test(idx) {
			return false
		}
	}
	return true
}

// Package bloomfilter implements the sstable filter block: a FilterPolicy
// builds one filter per table (or per block, depending on FilterType) from
// the set of keys written to it, letting Get skip a disk read for a sstable
// that cannot contain the key. Grounded on the classic bloom.FilterPolicy,
// rewired onto github.com/bits-and-blooms/bloom/v3 instead of a hand-rolled
// bit array.
package bloomfilter

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
)

// FilterPolicy builds and probes filters for a set of keys.
type FilterPolicy interface {
	// Name identifies the algorithm; it is persisted in the metaindex block
	// alongside the filter data, and a reader ignores any filter whose name
	// does not match its own (correctness is unaffected, only performance).
	Name() string
	// NewWriter returns a fresh FilterWriter.
	NewWriter() FilterWriter
	// MayContain reports whether filter may contain key.
	MayContain(filter, key []byte) bool
}

// FilterWriter accumulates keys and produces one filter.
type FilterWriter interface {
	AddKey(key []byte)
	// Finish returns the encoded filter, or ok=false if no keys were added.
	Finish() (filter []byte, ok bool)
}

// Policy returns a FilterPolicy targeting approximately bitsPerKey bits of
// filter data per key. 10 bits per key (the default used by most sstable
// writers) yields roughly a 1% false positive rate.
func Policy(bitsPerKey uint32) FilterPolicy {
	if bitsPerKey < 1 {
		panic(fmt.Sprintf("bloomfilter: invalid bitsPerKey %d", bitsPerKey))
	}
	return policy{bitsPerKey: bitsPerKey}
}

type policy struct {
	bitsPerKey uint32
}

func (p policy) Name() string {
	return fmt.Sprintf("strata.BuiltinBloomFilter(%d)", p.bitsPerKey)
}

func (p policy) NewWriter() FilterWriter {
	return &writer{bitsPerKey: p.bitsPerKey}
}

func (p policy) MayContain(filter, key []byte) bool {
	f := &bloom.BloomFilter{}
	if err := f.GobDecode(filter); err != nil {
		// A filter that fails to decode is treated as "don't know" rather
		// than an error: correctness falls back to reading the block.
		return true
	}
	return f.Test(fingerprint(key))
}

// writer buffers keys for one table (or block) and builds the filter at
// Finish, since bloom.NewWithEstimates needs the key count up front to size
// the bit array.
type writer struct {
	bitsPerKey uint32
	keys       [][]byte
}

func (w *writer) AddKey(key []byte) {
	w.keys = append(w.keys, append([]byte(nil), key...))
}

func (w *writer) Finish() ([]byte, bool) {
	if len(w.keys) == 0 {
		return nil, false
	}
	falsePositive := bitsPerKeyToFPRate(w.bitsPerKey)
	f := bloom.NewWithEstimates(uint(len(w.keys)), falsePositive)
	for _, k := range w.keys {
		f.Add(fingerprint(k))
	}
	enc, err := f.GobEncode()
	if err != nil {
		return nil, false
	}
	return enc, true
}

// fingerprint hashes a key down to the 8 bytes the bloom package filters on,
// using xxhash (already a dependency of the block cache) instead of pulling
// in a second hash family.
func fingerprint(key []byte) []byte {
	h := xxhash.Sum64(key)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(h >> (8 * i))
	}
	return buf[:]
}

// bitsPerKeyToFPRate approximates the false-positive rate implied by a given
// bits-per-key budget, using the classic p ~= exp(-bitsPerKey * ln(2)^2).
func bitsPerKeyToFPRate(bitsPerKey uint32) float64 {
	const ln2 = 0.6931471805599453
	p := math.Exp(-float64(bitsPerKey) * ln2 * ln2)
	if p <= 0 || p >= 1 {
		return 0.01
	}
	return p
}
